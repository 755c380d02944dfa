package storage

// Overlay buffers writes on top of a base database so that a sequence of
// mutations can be committed as a unit or discarded wholesale. Every market
// operation runs against a fresh overlay; a failed precondition anywhere in
// the handler leaves the base untouched.
type Overlay struct {
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if _, gone := o.deletes[string(key)]; gone {
		return nil, nil
	}
	if value, ok := o.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

func (o *Overlay) Close() {}

// Commit flushes all buffered mutations into the base database. The overlay
// must not be reused afterwards.
func (o *Overlay) Commit() error {
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every buffered mutation.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

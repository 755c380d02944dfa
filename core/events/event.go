package events

import "relicmarket/core/types"

// Event represents a structured state change emitted by the market.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wherever a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Collector buffers emitted events so the processor can attach them to the
// enclosing operation once it commits. Events gathered during an aborted
// operation are dropped together with its state changes.
type Collector struct {
	collected []types.Event
}

func (c *Collector) Emit(evt Event) {
	if evt == nil {
		return
	}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			c.collected = append(c.collected, *payload)
		}
		return
	}
	c.collected = append(c.collected, types.Event{Type: evt.EventType()})
}

// Drain returns the buffered events and resets the collector.
func (c *Collector) Drain() []types.Event {
	out := c.collected
	c.collected = nil
	return out
}

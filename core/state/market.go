package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"relicmarket/native/market"
)

// ListingGet loads the global market record, reporting whether it exists.
func (m *Manager) ListingGet() (*market.Listing, bool, error) {
	data, err := m.db.Get(listingKey)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	listing := new(market.Listing)
	if err := rlp.DecodeBytes(data, listing); err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingPut persists the global market record.
func (m *Manager) ListingPut(listing *market.Listing) error {
	sanitized, err := market.SanitizeListing(listing)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(listingKey, encoded)
}

// RoundGet loads the persisted ledger round. A round that was never stored
// reads as zero.
func (m *Manager) RoundGet() (uint64, error) {
	data, err := m.db.Get(roundKey)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var round uint64
	if err := rlp.DecodeBytes(data, &round); err != nil {
		return 0, err
	}
	return round, nil
}

// RoundPut persists the ledger round. The clock lives in the same store as
// the sale records it orders, so a reopened node resumes where it left off.
func (m *Manager) RoundPut(round uint64) error {
	encoded, err := rlp.EncodeToBytes(round)
	if err != nil {
		return err
	}
	return m.db.Put(roundKey, encoded)
}

// SaleGet loads the sale record for a seller, reporting whether one exists.
func (m *Manager) SaleGet(seller [20]byte) (*market.Sale, bool, error) {
	data, err := m.db.Get(saleKey(seller))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	sale := new(market.Sale)
	if err := rlp.DecodeBytes(data, sale); err != nil {
		return nil, false, err
	}
	return sale, true, nil
}

// SalePut persists a sale record under its seller.
func (m *Manager) SalePut(sale *market.Sale) error {
	sanitized, err := market.SanitizeSale(sale)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(saleKey(sanitized.Seller), encoded)
}

// SaleDelete removes the sale record for a seller.
func (m *Manager) SaleDelete(seller [20]byte) error {
	return m.db.Delete(saleKey(seller))
}

// ItemParamsGet loads the registered parameters of an item.
func (m *Manager) ItemParamsGet(itemID uint64) (*market.ItemParams, bool, error) {
	data, err := m.db.Get(itemKey(itemID))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	params := new(market.ItemParams)
	if err := rlp.DecodeBytes(data, params); err != nil {
		return nil, false, err
	}
	return params, true, nil
}

// RegisterItem stores the parameters of a transferable item. It is invoked
// during genesis setup; the market itself never mutates item parameters.
func (m *Manager) RegisterItem(itemID uint64, params *market.ItemParams) error {
	encoded, err := rlp.EncodeToBytes(params)
	if err != nil {
		return err
	}
	return m.db.Put(itemKey(itemID), encoded)
}

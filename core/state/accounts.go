package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"relicmarket/core/types"
)

// GetAccount loads the account stored for addr. A missing account reads as a
// zero-balance account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &types.Account{}, nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// ItemBalance returns how many units of the item addr custodies.
func (m *Manager) ItemBalance(addr [20]byte, itemID uint64) (uint64, error) {
	data, err := m.db.Get(holdingKey(addr, itemID))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var balance uint64
	if err := rlp.DecodeBytes(data, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// SetItemBalance records the item holding for addr. A zero balance clears
// the entry.
func (m *Manager) SetItemBalance(addr [20]byte, itemID uint64, balance uint64) error {
	key := holdingKey(addr, itemID)
	if balance == 0 {
		return m.db.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

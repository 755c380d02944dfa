package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"relicmarket/storage"
)

// Manager reads and writes all market state in the backing key-value store.
// Records are RLP encoded under keccak-derived keys. Running a Manager over a
// storage.Overlay gives every operation its all-or-nothing boundary.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix = []byte("account:")
	holdingPrefix = []byte("holding:")
	itemPrefix    = []byte("item:")
	salePrefix    = []byte("sale:")
	listingKey    = ethcrypto.Keccak256([]byte("market-listing"))
	roundKey      = ethcrypto.Keccak256([]byte("market-round"))
)

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func holdingKey(addr [20]byte, itemID uint64) []byte {
	buf := make([]byte, len(holdingPrefix)+8+1+len(addr))
	copy(buf, holdingPrefix)
	binary.BigEndian.PutUint64(buf[len(holdingPrefix):], itemID)
	buf[len(holdingPrefix)+8] = ':'
	copy(buf[len(holdingPrefix)+9:], addr[:])
	return ethcrypto.Keccak256(buf)
}

func itemKey(itemID uint64) []byte {
	buf := make([]byte, len(itemPrefix)+8)
	copy(buf, itemPrefix)
	binary.BigEndian.PutUint64(buf[len(itemPrefix):], itemID)
	return ethcrypto.Keccak256(buf)
}

func saleKey(seller [20]byte) []byte {
	buf := make([]byte, len(salePrefix)+len(seller))
	copy(buf, salePrefix)
	copy(buf[len(salePrefix):], seller[:])
	return ethcrypto.Keccak256(buf)
}

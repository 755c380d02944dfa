package market

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// VaultAddress returns the deterministic address of the market vault: the
// account that custodies escrowed funds and holds transfer authority over
// the item. No key exists for it, so only the engine can move its balance.
func VaultAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte("relicmarket/vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

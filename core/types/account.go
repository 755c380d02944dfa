package types

// Account holds the native-currency balance for a single address. Item
// holdings are tracked separately by the state manager, keyed per item.
type Account struct {
	Nonce   uint64 `json:"nonce"`
	Balance uint64 `json:"balance"`
}

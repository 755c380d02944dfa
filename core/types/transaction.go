package types

import (
	"crypto/sha256"
	"encoding/json"
)

// TxType defines the market operation a transaction requests.
type TxType byte

const (
	TxTypeInitializeMarket TxType = 0x01 // One-time market setup
	TxTypeOfferSale        TxType = 0x02 // Seller lists the item at a fixed price
	TxTypeCommitPayment    TxType = 0x03 // Buyer escrows the price (bundled payment leg)
	TxTypeFinalizeSale     TxType = 0x04 // Settle: item to buyer, proceeds to seller
	TxTypeRefundSale       TxType = 0x05 // Buyer reclaims escrowed funds
	TxTypeClaimFees        TxType = 0x06 // Creator withdraws accumulated royalties
)

// PaymentLeg is a native-currency transfer bundled with a transaction. It is
// applied in the same atomic operation as the command it accompanies.
type PaymentLeg struct {
	From   [20]byte `json:"from"`
	To     [20]byte `json:"to"`
	Amount uint64   `json:"amount"`
}

// Transaction is the operation envelope submitted to the node. Data carries a
// JSON payload whose shape depends on Type. The three redirection fields must
// remain empty; the envelope guard rejects any transaction that sets them.
type Transaction struct {
	Type     TxType      `json:"type"`
	Nonce    uint64      `json:"nonce"`
	From     [20]byte    `json:"from"`
	Data     []byte      `json:"data,omitempty"`
	Payment  *PaymentLeg `json:"payment,omitempty"`
	Accounts [][20]byte  `json:"accounts,omitempty"`

	RekeyTo          []byte `json:"rekeyTo,omitempty"`
	CloseRemainderTo []byte `json:"closeRemainderTo,omitempty"`
	ItemCloseTo      []byte `json:"itemCloseTo,omitempty"`
}

// Hash returns a deterministic digest of the transaction contents.
func (tx *Transaction) Hash() ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

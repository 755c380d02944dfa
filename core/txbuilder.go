package core

import (
	"encoding/json"

	"relicmarket/core/types"
	"relicmarket/native/market"
)

// NewInitializeTx builds the one-time market initialization command.
func NewInitializeTx(from, creator [20]byte, itemID, royaltyRateMilli, waitingRounds uint64) (*types.Transaction, error) {
	data, err := json.Marshal(initializePayload{
		Creator:          creator,
		ItemID:           itemID,
		RoyaltyRateMilli: royaltyRateMilli,
		WaitingRounds:    waitingRounds,
	})
	if err != nil {
		return nil, err
	}
	return &types.Transaction{Type: types.TxTypeInitializeMarket, From: from, Data: data}, nil
}

// NewOfferTx builds an offer command placing (or re-pricing) the seller's
// sale at the given price.
func NewOfferTx(seller [20]byte, price uint64) (*types.Transaction, error) {
	data, err := json.Marshal(offerPayload{Price: price})
	if err != nil {
		return nil, err
	}
	return &types.Transaction{Type: types.TxTypeOfferSale, From: seller, Data: data}, nil
}

// NewCommitTx builds a commit command bundling the buyer's escrow payment to
// the market vault.
func NewCommitTx(buyer, seller [20]byte, itemID, amount uint64) (*types.Transaction, error) {
	data, err := json.Marshal(commitPayload{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return &types.Transaction{
		Type:     types.TxTypeCommitPayment,
		From:     buyer,
		Data:     data,
		Accounts: [][20]byte{seller},
		Payment:  &types.PaymentLeg{From: buyer, To: market.VaultAddress(), Amount: amount},
	}, nil
}

// NewFinalizeTx builds a finalize command for the sale bound to seller.
func NewFinalizeTx(caller, seller [20]byte) *types.Transaction {
	return &types.Transaction{Type: types.TxTypeFinalizeSale, From: caller, Accounts: [][20]byte{seller}}
}

// NewRefundTx builds a refund command for the sale bound to seller.
func NewRefundTx(caller, seller [20]byte) *types.Transaction {
	return &types.Transaction{Type: types.TxTypeRefundSale, From: caller, Accounts: [][20]byte{seller}}
}

// NewClaimFeesTx builds a claim command sweeping accumulated royalties to
// the creator.
func NewClaimFeesTx(creator [20]byte) *types.Transaction {
	return &types.Transaction{Type: types.TxTypeClaimFees, From: creator}
}

package market

import (
	"strconv"

	"relicmarket/core/types"
	"relicmarket/crypto"
)

const (
	EventTypeMarketInitialized = "market.initialized"
	EventTypeSaleOffered       = "market.sale.offered"
	EventTypePaymentCommitted  = "market.sale.committed"
	EventTypeSaleFinalized     = "market.sale.finalized"
	EventTypeSaleRefunded      = "market.sale.refunded"
	EventTypeFeesClaimed       = "market.fees.claimed"
)

// NewInitializedEvent returns the canonical payload emitted once at market
// setup.
func NewInitializedEvent(l *Listing) *types.Event {
	if l == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeMarketInitialized,
		Attributes: map[string]string{
			"creator":       formatAddr(l.Creator),
			"itemId":        formatUint(l.ItemID),
			"royaltyMilli":  formatUint(l.RoyaltyRateMilli),
			"waitingRounds": formatUint(l.WaitingRounds),
		},
	}
}

// NewOfferedEvent returns the canonical payload for a fresh or superseded
// offer.
func NewOfferedEvent(s *Sale) *types.Event {
	if s == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeSaleOffered,
		Attributes: map[string]string{
			"seller": formatAddr(s.Seller),
			"price":  formatUint(s.Price),
		},
	}
}

// NewCommittedEvent returns the canonical payload emitted when a buyer
// escrows the sale price.
func NewCommittedEvent(s *Sale) *types.Event {
	if s == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypePaymentCommitted,
		Attributes: map[string]string{
			"seller":      formatAddr(s.Seller),
			"buyer":       formatAddr(s.Buyer),
			"price":       formatUint(s.Price),
			"commitRound": formatUint(s.CommitRound),
		},
	}
}

// NewFinalizedEvent returns the canonical payload for a settled sale. The
// forced flag records a seller-driven settlement after the waiting period.
func NewFinalizedEvent(s *Sale, fee, payout uint64, forced bool) *types.Event {
	if s == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeSaleFinalized,
		Attributes: map[string]string{
			"seller": formatAddr(s.Seller),
			"buyer":  formatAddr(s.Buyer),
			"price":  formatUint(s.Price),
			"fee":    formatUint(fee),
			"payout": formatUint(payout),
			"forced": strconv.FormatBool(forced),
		},
	}
}

// NewRefundedEvent returns the canonical payload for a buyer refund.
func NewRefundedEvent(s *Sale, buyer [20]byte, amount uint64) *types.Event {
	if s == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeSaleRefunded,
		Attributes: map[string]string{
			"seller": formatAddr(s.Seller),
			"buyer":  formatAddr(buyer),
			"amount": formatUint(amount),
		},
	}
}

// NewFeesClaimedEvent returns the canonical payload for a royalty withdrawal.
func NewFeesClaimedEvent(creator [20]byte, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeFeesClaimed,
		Attributes: map[string]string{
			"creator": formatAddr(creator),
			"amount":  formatUint(amount),
		},
	}
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.RelicPrefix, addr).String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

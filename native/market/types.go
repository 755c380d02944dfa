package market

import "fmt"

// Listing is the single global market record created at initialization. The
// creator, item and royalty rate are immutable afterwards; only the fee
// accumulator changes over the market's lifetime.
type Listing struct {
	Creator          [20]byte
	ItemID           uint64
	RoyaltyRateMilli uint64
	WaitingRounds    uint64
	CollectedFees    uint64
}

// Clone returns a copy of the listing so callers can mutate the result
// without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// SanitizeListing validates a listing definition before it is persisted.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listing", ErrMalformedRequest)
	}
	if l.RoyaltyRateMilli == 0 || l.RoyaltyRateMilli > rateScale {
		return nil, fmt.Errorf("%w: royalty rate %d out of (0, %d]", ErrInvalidAmount, l.RoyaltyRateMilli, rateScale)
	}
	return l.Clone(), nil
}

// Sale tracks one seller's active offer. It is created by Offer, committed by
// CommitPayment and consumed by Finalize; Refund reverts it to the offered
// state with the price retained.
type Sale struct {
	Seller         [20]byte
	Price          uint64
	SellerApproved bool
	BuyerApproved  bool
	Buyer          [20]byte
	CommitRound    uint64
}

// Clone returns a copy of the sale record.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Committed reports whether a buyer has escrowed the price for this sale.
func (s *Sale) Committed() bool {
	return s.SellerApproved && s.BuyerApproved
}

// Consistent reports the paired-approval invariant: the two consent flags
// only ever change together.
func (s *Sale) Consistent() bool {
	return s.SellerApproved == s.BuyerApproved
}

// SanitizeSale validates a sale record before it is persisted.
func SanitizeSale(s *Sale) (*Sale, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil sale", ErrMalformedRequest)
	}
	if s.Price == 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}
	if !s.Consistent() {
		return nil, fmt.Errorf("%w: approval flags diverged", ErrStateConflict)
	}
	return s.Clone(), nil
}

// ItemParams describes the transferable holding as registered on the ledger.
// The market only trades items with no fractional units that are frozen by
// default and whose clawback and freeze authorities rest with the vault.
type ItemParams struct {
	Decimals      uint8
	DefaultFrozen bool
	Clawback      [20]byte
	Freeze        [20]byte
}

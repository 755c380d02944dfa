package market

import (
	"fmt"

	"relicmarket/core/events"
	"relicmarket/core/types"
)

type engineState interface {
	effectState
	ListingGet() (*Listing, bool, error)
	ListingPut(*Listing) error
	SaleGet(seller [20]byte) (*Sale, bool, error)
	SalePut(*Sale) error
	SaleDelete(seller [20]byte) error
	ItemParamsGet(itemID uint64) (*ItemParams, bool, error)
}

// Effects is the narrow surface through which a handler moves currency or
// the item. Only the engine invokes it, and only after every precondition of
// the enclosing operation has passed.
type Effects interface {
	Pay(to [20]byte, amount uint64) error
	TransferItem(from, to [20]byte, itemID uint64) error
}

// Engine implements the sale state machine: Idle -> Offered -> Committed ->
// settled or refunded. It owns the global listing and all sale records
// exclusively; no other component writes them.
type Engine struct {
	state   engineState
	effects Effects
	emitter events.Emitter
	vault   [20]byte
	roundFn func() uint64
}

// NewEngine creates a market engine with a no-op emitter. Callers configure
// state, effects, vault and the round source before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		roundFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEffects configures the effect executor used for settlement.
func (e *Engine) SetEffects(effects Effects) { e.effects = effects }

// SetVault configures the address that custodies escrowed funds and holds
// transfer authority over the item.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRoundFunc overrides the ledger round source. The current round is only
// consulted by CommitPayment (to stamp the record) and by the seller's
// forced-finalize eligibility check.
func (e *Engine) SetRoundFunc(round func() uint64) {
	if round == nil {
		e.roundFn = func() uint64 { return 0 }
		return
	}
	e.roundFn = round
}

type marketEvent struct {
	evt *types.Event
}

func (m marketEvent) EventType() string {
	if m.evt == nil {
		return ""
	}
	return m.evt.Type
}

func (m marketEvent) Event() *types.Event { return m.evt }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) round() uint64 {
	if e == nil || e.roundFn == nil {
		return 0
	}
	return e.roundFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.effects == nil {
		return errNilEffects
	}
	return nil
}

func (e *Engine) listing() (*Listing, error) {
	listing, ok, err := e.state.ListingGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return listing, nil
}

// Initialize performs the one-time market setup. It binds the royalty
// beneficiary, the item under sale and the royalty rate permanently, and
// records the waiting period after which a seller may force settlement.
func (e *Engine) Initialize(creator [20]byte, itemID, rateMilli, waitingRounds uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.ListingGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	params, ok, err := e.state.ItemParamsGet(itemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown item %d", ErrOwnershipViolation, itemID)
	}
	if params.Decimals != 0 {
		return fmt.Errorf("%w: item must have no fractional units", ErrOwnershipViolation)
	}
	if !params.DefaultFrozen {
		return fmt.Errorf("%w: item must be frozen by default", ErrOwnershipViolation)
	}
	listing, err := SanitizeListing(&Listing{
		Creator:          creator,
		ItemID:           itemID,
		RoyaltyRateMilli: rateMilli,
		WaitingRounds:    waitingRounds,
	})
	if err != nil {
		return err
	}
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewInitializedEvent(listing))
	return nil
}

// Offer lists the item for sale at a fixed price. A seller may supersede
// their own uncommitted offer; once a buyer has committed, the offer is
// locked until the sale settles or is refunded.
func (e *Engine) Offer(seller [20]byte, price uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listing, err := e.listing()
	if err != nil {
		return err
	}
	if price == 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}
	if price <= ServiceMargin {
		return fmt.Errorf("%w: price %d does not cover the service margin %d", ErrInvalidAmount, price, ServiceMargin)
	}
	if existing, ok, err := e.state.SaleGet(seller); err != nil {
		return err
	} else if ok && existing.Committed() {
		return fmt.Errorf("%w: sale already committed", ErrStateConflict)
	}
	params, ok, err := e.state.ItemParamsGet(listing.ItemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown item %d", ErrOwnershipViolation, listing.ItemID)
	}
	if params.Clawback != e.vault || params.Freeze != e.vault {
		return fmt.Errorf("%w: market lacks transfer authority over item %d", ErrOwnershipViolation, listing.ItemID)
	}
	held, err := e.state.ItemBalance(seller, listing.ItemID)
	if err != nil {
		return err
	}
	if held < 1 {
		return fmt.Errorf("%w: seller does not custody item %d", ErrOwnershipViolation, listing.ItemID)
	}
	sale, err := SanitizeSale(&Sale{Seller: seller, Price: price})
	if err != nil {
		return err
	}
	if err := e.state.SalePut(sale); err != nil {
		return err
	}
	e.emit(NewOfferedEvent(sale))
	return nil
}

// CommitPayment escrows the sale price. The bundled payment and the approval
// flip happen in the same atomic operation, so the paired consent flags can
// never be observed half-set.
func (e *Engine) CommitPayment(buyer, seller [20]byte, itemID uint64, payment *types.PaymentLeg) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listing, err := e.listing()
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("%w: commit requires a bundled payment", ErrMalformedRequest)
	}
	if itemID != listing.ItemID {
		return fmt.Errorf("%w: item %d is not under sale", ErrMalformedRequest, itemID)
	}
	if buyer == seller {
		return fmt.Errorf("%w: seller cannot buy own item", ErrUnauthorizedCaller)
	}
	sale, ok, err := e.state.SaleGet(seller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no active sale for seller", ErrStateConflict)
	}
	if sale.SellerApproved {
		return fmt.Errorf("%w: sale already committed", ErrStateConflict)
	}
	if payment.To != e.vault {
		return fmt.Errorf("%w: payment must go to the market vault", ErrUnsafeEnvelope)
	}
	if payment.Amount != sale.Price {
		return fmt.Errorf("%w: payment %d does not match price %d", ErrInvalidAmount, payment.Amount, sale.Price)
	}
	held, err := e.state.ItemBalance(seller, listing.ItemID)
	if err != nil {
		return err
	}
	if held < 1 {
		return fmt.Errorf("%w: seller no longer custodies item %d", ErrOwnershipViolation, listing.ItemID)
	}
	if err := e.escrowPayment(buyer, payment.Amount); err != nil {
		return err
	}
	sale.SellerApproved = true
	sale.BuyerApproved = true
	sale.Buyer = buyer
	sale.CommitRound = e.round()
	if err := e.state.SalePut(sale); err != nil {
		return err
	}
	e.emit(NewCommittedEvent(sale))
	return nil
}

// escrowPayment applies the bundled payment leg: funds move from the buyer
// to the vault inside the current overlay.
func (e *Engine) escrowPayment(buyer [20]byte, amount uint64) error {
	buyerAcc, err := e.state.GetAccount(buyer)
	if err != nil {
		return err
	}
	if buyerAcc.Balance < amount {
		return fmt.Errorf("%w: buyer balance %d below price %d", ErrInvalidAmount, buyerAcc.Balance, amount)
	}
	vaultAcc, err := e.state.GetAccount(e.vault)
	if err != nil {
		return err
	}
	if addOverflows(vaultAcc.Balance, amount) {
		return fmt.Errorf("%w: vault balance", ErrArithmeticOverflow)
	}
	buyerAcc.Balance -= amount
	vaultAcc.Balance += amount
	if err := e.state.PutAccount(buyer, buyerAcc); err != nil {
		return err
	}
	return e.state.PutAccount(e.vault, vaultAcc)
}

// Finalize settles a committed sale: the item moves to the buyer, the seller
// receives the price minus the service margin and the royalty fee, and the
// fee accrues to the creator's pool. The bound buyer may finalize at any
// time; the seller only once the waiting period since commit has elapsed.
// The creator pays no royalty on their own sales.
func (e *Engine) Finalize(caller, seller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, err := e.listing()
	if err != nil {
		return err
	}
	sale, ok, err := e.state.SaleGet(seller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no active sale for seller", ErrStateConflict)
	}
	if !sale.Committed() {
		return fmt.Errorf("%w: sale not committed", ErrStateConflict)
	}
	forced := false
	switch caller {
	case sale.Buyer:
	case seller:
		if addOverflows(sale.CommitRound, listing.WaitingRounds) {
			return fmt.Errorf("%w: waiting period", ErrArithmeticOverflow)
		}
		if e.round() <= sale.CommitRound+listing.WaitingRounds {
			return fmt.Errorf("%w: waiting period not elapsed", ErrUnauthorizedCaller)
		}
		forced = true
	default:
		return fmt.Errorf("%w: only the bound buyer or the seller may finalize", ErrUnauthorizedCaller)
	}
	held, err := e.state.ItemBalance(seller, listing.ItemID)
	if err != nil {
		return err
	}
	if held < 1 {
		return fmt.Errorf("%w: seller no longer custodies item %d", ErrOwnershipViolation, listing.ItemID)
	}
	if sale.Price <= ServiceMargin {
		return fmt.Errorf("%w: price %d does not cover the service margin %d", ErrInvalidAmount, sale.Price, ServiceMargin)
	}
	net := sale.Price - ServiceMargin
	var fee uint64
	if seller != listing.Creator {
		if err := CheckFeeSafe(net, listing.RoyaltyRateMilli); err != nil {
			return err
		}
		fee = ComputeFee(net, listing.RoyaltyRateMilli)
	}
	if addOverflows(fee, net) {
		return fmt.Errorf("%w: settlement amounts", ErrArithmeticOverflow)
	}
	if addOverflows(listing.CollectedFees, fee) {
		return fmt.Errorf("%w: collected fees", ErrArithmeticOverflow)
	}
	if fee >= net {
		return fmt.Errorf("%w: fee %d leaves no residual of price %d", ErrInvalidAmount, fee, sale.Price)
	}
	if err := e.effects.TransferItem(seller, sale.Buyer, listing.ItemID); err != nil {
		return err
	}
	if err := e.effects.Pay(seller, net-fee); err != nil {
		return err
	}
	listing.CollectedFees += fee
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.SaleDelete(seller); err != nil {
		return err
	}
	e.emit(NewFinalizedEvent(sale, fee, net-fee, forced))
	return nil
}

// Refund returns the escrowed funds, minus one ledger fee unit, to the bound
// buyer. The sale reverts to the offered state with the price retained, so
// the seller need not offer again.
func (e *Engine) Refund(caller, seller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.listing(); err != nil {
		return err
	}
	sale, ok, err := e.state.SaleGet(seller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no active sale for seller", ErrStateConflict)
	}
	if !sale.Committed() {
		return fmt.Errorf("%w: nothing escrowed", ErrStateConflict)
	}
	if caller != sale.Buyer {
		return fmt.Errorf("%w: only the bound buyer may refund", ErrUnauthorizedCaller)
	}
	if sale.Price <= LedgerFeeUnit {
		return fmt.Errorf("%w: price %d does not cover the refund fee", ErrInvalidAmount, sale.Price)
	}
	buyer := sale.Buyer
	amount := sale.Price - LedgerFeeUnit
	if err := e.effects.Pay(buyer, amount); err != nil {
		return err
	}
	sale.SellerApproved = false
	sale.BuyerApproved = false
	sale.Buyer = [20]byte{}
	sale.CommitRound = 0
	if err := e.state.SalePut(sale); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(sale, buyer, amount))
	return nil
}

// ClaimFees pays the full royalty pool to the creator and resets the
// accumulator. The vault must additionally cover the execution fee of the
// payout; the creator is expected to keep the vault funded for that.
func (e *Engine) ClaimFees(caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, err := e.listing()
	if err != nil {
		return err
	}
	if caller != listing.Creator {
		return fmt.Errorf("%w: only the creator may claim fees", ErrUnauthorizedCaller)
	}
	if listing.CollectedFees == 0 {
		return ErrNothingToClaim
	}
	amount := listing.CollectedFees
	if err := e.effects.Pay(listing.Creator, amount); err != nil {
		return err
	}
	listing.CollectedFees = 0
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewFeesClaimedEvent(listing.Creator, amount))
	return nil
}

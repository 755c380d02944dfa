package market

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"relicmarket/core/events"
	"relicmarket/core/types"
)

type holdingKey struct {
	addr   [20]byte
	itemID uint64
}

type mockState struct {
	listing  *Listing
	sales    map[[20]byte]*Sale
	accounts map[[20]byte]*types.Account
	items    map[uint64]*ItemParams
	holdings map[holdingKey]uint64
}

func newMockState() *mockState {
	return &mockState{
		sales:    make(map[[20]byte]*Sale),
		accounts: make(map[[20]byte]*types.Account),
		items:    make(map[uint64]*ItemParams),
		holdings: make(map[holdingKey]uint64),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) ListingGet() (*Listing, bool, error) {
	if m.listing == nil {
		return nil, false, nil
	}
	return m.listing.Clone(), true, nil
}

func (m *mockState) ListingPut(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	m.listing = sanitized
	return nil
}

func (m *mockState) SaleGet(seller [20]byte) (*Sale, bool, error) {
	sale, ok := m.sales[seller]
	if !ok {
		return nil, false, nil
	}
	return sale.Clone(), true, nil
}

func (m *mockState) SalePut(s *Sale) error {
	sanitized, err := SanitizeSale(s)
	if err != nil {
		return err
	}
	m.sales[sanitized.Seller] = sanitized
	return nil
}

func (m *mockState) SaleDelete(seller [20]byte) error {
	delete(m.sales, seller)
	return nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return &types.Account{}, nil
	}
	clone := *acc
	return &clone, nil
}

func (m *mockState) PutAccount(addr [20]byte, acc *types.Account) error {
	clone := *acc
	m.accounts[addr] = &clone
	return nil
}

func (m *mockState) ItemBalance(addr [20]byte, itemID uint64) (uint64, error) {
	return m.holdings[holdingKey{addr: addr, itemID: itemID}], nil
}

func (m *mockState) SetItemBalance(addr [20]byte, itemID uint64, balance uint64) error {
	m.holdings[holdingKey{addr: addr, itemID: itemID}] = balance
	return nil
}

func (m *mockState) ItemParamsGet(itemID uint64) (*ItemParams, bool, error) {
	params, ok := m.items[itemID]
	if !ok {
		return nil, false, nil
	}
	clone := *params
	return &clone, true, nil
}

const testItemID uint64 = 7

var (
	vaultAddr   = newTestAddress(0xEE)
	creatorAddr = newTestAddress(0xC0)
	sellerAddr  = newTestAddress(0xA1)
	buyerAddr   = newTestAddress(0xB2)
	otherAddr   = newTestAddress(0xD4)
)

type roundClock struct {
	round uint64
}

func (c *roundClock) now() uint64 { return c.round }

// newTestEngine returns an initialized market (rate 35, waitingRounds 10)
// with the item custodied by sellerAddr and the buyer funded.
func newTestEngine(t *testing.T) (*Engine, *mockState, *roundClock, *events.Collector) {
	t.Helper()
	state := newMockState()
	state.items[testItemID] = &ItemParams{Decimals: 0, DefaultFrozen: true, Clawback: vaultAddr, Freeze: vaultAddr}
	state.holdings[holdingKey{addr: sellerAddr, itemID: testItemID}] = 1
	state.accounts[buyerAddr] = &types.Account{Balance: 2_000_000}

	clock := &roundClock{round: 1}
	collector := &events.Collector{}

	engine := NewEngine()
	engine.SetState(state)
	engine.SetVault(vaultAddr)
	engine.SetEffects(NewExecutor(state, vaultAddr))
	engine.SetRoundFunc(clock.now)
	engine.SetEmitter(collector)

	require.NoError(t, engine.Initialize(creatorAddr, testItemID, 35, 10))
	return engine, state, clock, collector
}

func paymentTo(vault [20]byte, from [20]byte, amount uint64) *types.PaymentLeg {
	return &types.PaymentLeg{From: from, To: vault, Amount: amount}
}

func TestInitialize(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)

	require.NotNil(t, state.listing)
	require.Equal(t, creatorAddr, state.listing.Creator)
	require.Equal(t, uint64(35), state.listing.RoyaltyRateMilli)
	require.Equal(t, uint64(0), state.listing.CollectedFees)

	require.ErrorIs(t, engine.Initialize(creatorAddr, testItemID, 35, 10), ErrAlreadyInitialized)
}

func TestInitializeRejectsBadParameters(t *testing.T) {
	state := newMockState()
	state.items[testItemID] = &ItemParams{Decimals: 0, DefaultFrozen: true, Clawback: vaultAddr, Freeze: vaultAddr}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetVault(vaultAddr)
	engine.SetEffects(NewExecutor(state, vaultAddr))

	require.ErrorIs(t, engine.Initialize(creatorAddr, testItemID, 0, 10), ErrInvalidAmount)
	require.ErrorIs(t, engine.Initialize(creatorAddr, testItemID, 1001, 10), ErrInvalidAmount)
	require.ErrorIs(t, engine.Initialize(creatorAddr, 99, 35, 10), ErrOwnershipViolation)

	state.items[8] = &ItemParams{Decimals: 2, DefaultFrozen: true, Clawback: vaultAddr, Freeze: vaultAddr}
	require.ErrorIs(t, engine.Initialize(creatorAddr, 8, 35, 10), ErrOwnershipViolation)

	state.items[9] = &ItemParams{Decimals: 0, DefaultFrozen: false, Clawback: vaultAddr, Freeze: vaultAddr}
	require.ErrorIs(t, engine.Initialize(creatorAddr, 9, 35, 10), ErrOwnershipViolation)

	require.Nil(t, state.listing)
}

func TestOffer(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	sale := state.sales[sellerAddr]
	require.NotNil(t, sale)
	require.Equal(t, uint64(1_000_000), sale.Price)
	require.False(t, sale.SellerApproved)
	require.False(t, sale.BuyerApproved)

	// An uncommitted offer can be superseded.
	require.NoError(t, engine.Offer(sellerAddr, 750_000))
	require.Equal(t, uint64(750_000), state.sales[sellerAddr].Price)
}

func TestOfferPreconditions(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)

	require.ErrorIs(t, engine.Offer(sellerAddr, 0), ErrInvalidAmount)
	require.ErrorIs(t, engine.Offer(sellerAddr, ServiceMargin), ErrInvalidAmount)
	require.NoError(t, engine.Offer(sellerAddr, ServiceMargin+1))

	// Caller without custody cannot offer.
	require.ErrorIs(t, engine.Offer(otherAddr, 10_000), ErrOwnershipViolation)

	// The vault must hold clawback and freeze authority.
	state.items[testItemID].Clawback = otherAddr
	require.ErrorIs(t, engine.Offer(sellerAddr, 10_000), ErrOwnershipViolation)
	state.items[testItemID].Clawback = vaultAddr
	state.items[testItemID].Freeze = otherAddr
	require.ErrorIs(t, engine.Offer(sellerAddr, 10_000), ErrOwnershipViolation)
}

func TestOfferRequiresInitializedMarket(t *testing.T) {
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetVault(vaultAddr)
	engine.SetEffects(NewExecutor(state, vaultAddr))

	require.ErrorIs(t, engine.Offer(sellerAddr, 10_000), ErrNotInitialized)
}

func TestCommitPayment(t *testing.T) {
	engine, state, clock, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))

	clock.round = 42
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	sale := state.sales[sellerAddr]
	require.True(t, sale.SellerApproved)
	require.True(t, sale.BuyerApproved)
	require.Equal(t, buyerAddr, sale.Buyer)
	require.Equal(t, uint64(42), sale.CommitRound)

	buyer, _ := state.GetAccount(buyerAddr)
	vault, _ := state.GetAccount(vaultAddr)
	require.Equal(t, uint64(1_000_000), buyer.Balance)
	require.Equal(t, uint64(1_000_000), vault.Balance)
}

func TestCommitPaymentPreconditions(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)

	pay := func(amount uint64) *types.PaymentLeg { return paymentTo(vaultAddr, buyerAddr, amount) }

	// No active sale yet.
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, pay(1_000_000)), ErrStateConflict)

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))

	require.ErrorIs(t, engine.CommitPayment(sellerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, sellerAddr, 1_000_000)), ErrUnauthorizedCaller)
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, 99, pay(1_000_000)), ErrMalformedRequest)
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, nil), ErrMalformedRequest)
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(otherAddr, buyerAddr, 1_000_000)), ErrUnsafeEnvelope)
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, pay(999_999)), ErrInvalidAmount)

	// Insufficient buyer balance.
	require.ErrorIs(t, engine.CommitPayment(otherAddr, sellerAddr, testItemID, paymentTo(vaultAddr, otherAddr, 1_000_000)), ErrInvalidAmount)

	// Seller who lost custody cannot be committed against.
	require.NoError(t, state.SetItemBalance(sellerAddr, testItemID, 0))
	require.ErrorIs(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, pay(1_000_000)), ErrOwnershipViolation)
	require.NoError(t, state.SetItemBalance(sellerAddr, testItemID, 1))

	// Double commit.
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, pay(1_000_000)))
	require.ErrorIs(t, engine.CommitPayment(otherAddr, sellerAddr, testItemID, paymentTo(vaultAddr, otherAddr, 1_000_000)), ErrStateConflict)

	// A committed sale cannot be superseded by a new offer.
	require.ErrorIs(t, engine.Offer(sellerAddr, 500_000), ErrStateConflict)
}

func TestFinalizeByBuyer(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	require.NoError(t, engine.Finalize(buyerAddr, sellerAddr))

	// Item moved to the buyer.
	held, _ := state.ItemBalance(buyerAddr, testItemID)
	require.Equal(t, uint64(1), held)
	held, _ = state.ItemBalance(sellerAddr, testItemID)
	require.Equal(t, uint64(0), held)

	// Seller is paid price - margin - fee; the fee stays in the vault.
	seller, _ := state.GetAccount(sellerAddr)
	require.Equal(t, uint64(963_070), seller.Balance)
	vault, _ := state.GetAccount(vaultAddr)
	require.Equal(t, uint64(34_930), vault.Balance)
	require.Equal(t, uint64(34_930), state.listing.CollectedFees)

	// Sale record is consumed.
	_, ok, err := state.SaleGet(sellerAddr)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFinalizeAuthorization(t *testing.T) {
	engine, _, clock, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	clock.round = 100
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	require.ErrorIs(t, engine.Finalize(otherAddr, sellerAddr), ErrUnauthorizedCaller)

	// Seller cannot force before the waiting period elapses (inclusive bound).
	clock.round = 110
	require.ErrorIs(t, engine.Finalize(sellerAddr, sellerAddr), ErrUnauthorizedCaller)

	clock.round = 111
	require.NoError(t, engine.Finalize(sellerAddr, sellerAddr))
}

func TestForcedFinalizeBySellerCreatorPaysNoRoyalty(t *testing.T) {
	engine, state, clock, _ := newTestEngine(t)

	// Hand the item to the creator so they are the seller.
	require.NoError(t, state.SetItemBalance(sellerAddr, testItemID, 0))
	require.NoError(t, state.SetItemBalance(creatorAddr, testItemID, 1))

	require.NoError(t, engine.Offer(creatorAddr, 1_000_000))
	clock.round = 5
	require.NoError(t, engine.CommitPayment(buyerAddr, creatorAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	clock.round = 16
	require.NoError(t, engine.Finalize(creatorAddr, creatorAddr))

	// No self-royalty: the creator-seller keeps everything above the margin.
	creator, _ := state.GetAccount(creatorAddr)
	require.Equal(t, uint64(998_000), creator.Balance)
	require.Equal(t, uint64(0), state.listing.CollectedFees)

	held, _ := state.ItemBalance(buyerAddr, testItemID)
	require.Equal(t, uint64(1), held)
}

func TestFinalizeRequiresCommit(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	require.ErrorIs(t, engine.Finalize(buyerAddr, sellerAddr), ErrStateConflict)

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.ErrorIs(t, engine.Finalize(buyerAddr, sellerAddr), ErrStateConflict)
}

func TestFinalizeRequiresSellerCustody(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	require.NoError(t, state.SetItemBalance(sellerAddr, testItemID, 0))
	require.ErrorIs(t, engine.Finalize(buyerAddr, sellerAddr), ErrOwnershipViolation)

	// Nothing was paid out and the record survived.
	seller, _ := state.GetAccount(sellerAddr)
	require.Equal(t, uint64(0), seller.Balance)
	require.Equal(t, uint64(0), state.listing.CollectedFees)
	sale, ok, err := state.SaleGet(sellerAddr)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, sale.Committed())
}

func TestRefund(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))

	require.ErrorIs(t, engine.Refund(sellerAddr, sellerAddr), ErrUnauthorizedCaller)
	require.ErrorIs(t, engine.Refund(otherAddr, sellerAddr), ErrUnauthorizedCaller)

	require.NoError(t, engine.Refund(buyerAddr, sellerAddr))

	// Buyer got back everything but one ledger fee unit.
	buyer, _ := state.GetAccount(buyerAddr)
	require.Equal(t, uint64(1_999_000), buyer.Balance)
	vault, _ := state.GetAccount(vaultAddr)
	require.Equal(t, uint64(0), vault.Balance)

	// The sale reverted to the offered state with the price retained.
	sale, ok, err := state.SaleGet(sellerAddr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_000_000), sale.Price)
	require.False(t, sale.SellerApproved)
	require.False(t, sale.BuyerApproved)
	require.Equal(t, [20]byte{}, sale.Buyer)

	// A fresh commit is possible without a new offer.
	state.accounts[otherAddr] = &types.Account{Balance: 1_000_000}
	require.NoError(t, engine.CommitPayment(otherAddr, sellerAddr, testItemID, paymentTo(vaultAddr, otherAddr, 1_000_000)))
}

func TestRefundRequiresCommittedSale(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	require.ErrorIs(t, engine.Refund(buyerAddr, sellerAddr), ErrStateConflict)

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.ErrorIs(t, engine.Refund(buyerAddr, sellerAddr), ErrStateConflict)
}

func TestClaimFees(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))
	require.NoError(t, engine.Finalize(buyerAddr, sellerAddr))
	require.Equal(t, uint64(34_930), state.listing.CollectedFees)

	require.ErrorIs(t, engine.ClaimFees(otherAddr), ErrUnauthorizedCaller)

	// The vault holds exactly the fees; the payout's execution fee is not
	// covered until the creator funds the vault.
	require.ErrorIs(t, engine.ClaimFees(creatorAddr), ErrVaultUnderfunded)

	vault, _ := state.GetAccount(vaultAddr)
	vault.Balance += LedgerFeeUnit
	require.NoError(t, state.PutAccount(vaultAddr, vault))

	require.NoError(t, engine.ClaimFees(creatorAddr))
	creator, _ := state.GetAccount(creatorAddr)
	require.Equal(t, uint64(34_930), creator.Balance)
	require.Equal(t, uint64(0), state.listing.CollectedFees)

	require.ErrorIs(t, engine.ClaimFees(creatorAddr), ErrNothingToClaim)
}

// TestResaleAccumulatesRoyalties walks the full two-sale scenario: A sells to
// B, B resells to C, and the creator claims the doubled royalty pool.
func TestResaleAccumulatesRoyalties(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	thirdAddr := newTestAddress(0xF1)
	state.accounts[thirdAddr] = &types.Account{Balance: 1_000_000}

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))
	require.NoError(t, engine.Finalize(buyerAddr, sellerAddr))
	require.Equal(t, uint64(34_930), state.listing.CollectedFees)

	// B now custodies the item and resells at the same price.
	require.NoError(t, engine.Offer(buyerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(thirdAddr, buyerAddr, testItemID, paymentTo(vaultAddr, thirdAddr, 1_000_000)))
	require.NoError(t, engine.Finalize(thirdAddr, buyerAddr))
	require.Equal(t, uint64(69_860), state.listing.CollectedFees)

	held, _ := state.ItemBalance(thirdAddr, testItemID)
	require.Equal(t, uint64(1), held)

	// Fund the payout's execution fee, then drain the pool.
	vault, _ := state.GetAccount(vaultAddr)
	vault.Balance += LedgerFeeUnit
	require.NoError(t, state.PutAccount(vaultAddr, vault))
	require.NoError(t, engine.ClaimFees(creatorAddr))

	creator, _ := state.GetAccount(creatorAddr)
	require.Equal(t, uint64(69_860), creator.Balance)
	require.Equal(t, uint64(0), state.listing.CollectedFees)
	require.ErrorIs(t, engine.ClaimFees(creatorAddr), ErrNothingToClaim)
}

// TestApprovalCoupling checks that the paired consent flags never diverge,
// whatever sequence of operations runs.
func TestApprovalCoupling(t *testing.T) {
	engine, state, clock, _ := newTestEngine(t)

	checkCoupled := func() {
		for _, sale := range state.sales {
			require.True(t, sale.Consistent(), "approval flags diverged")
		}
	}

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	checkCoupled()
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))
	checkCoupled()
	require.NoError(t, engine.Refund(buyerAddr, sellerAddr))
	checkCoupled()
	clock.round = 9
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))
	checkCoupled()
	require.NoError(t, engine.Finalize(buyerAddr, sellerAddr))
	checkCoupled()
}

func TestEngineEmitsEvents(t *testing.T) {
	engine, _, _, collector := newTestEngine(t)

	require.NoError(t, engine.Offer(sellerAddr, 1_000_000))
	require.NoError(t, engine.CommitPayment(buyerAddr, sellerAddr, testItemID, paymentTo(vaultAddr, buyerAddr, 1_000_000)))
	require.NoError(t, engine.Finalize(buyerAddr, sellerAddr))

	drained := collector.Drain()
	var seen []string
	for _, evt := range drained {
		seen = append(seen, evt.Type)
	}
	require.Equal(t, []string{
		EventTypeMarketInitialized,
		EventTypeSaleOffered,
		EventTypePaymentCommitted,
		EventTypeSaleFinalized,
	}, seen)

	finalized := drained[len(drained)-1]
	require.Equal(t, "34930", finalized.Attributes["fee"])
	require.Equal(t, "963070", finalized.Attributes["payout"])
	require.Equal(t, "false", finalized.Attributes["forced"])
}

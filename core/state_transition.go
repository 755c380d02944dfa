package core

import (
	"encoding/json"
	"fmt"

	"relicmarket/core/events"
	nhstate "relicmarket/core/state"
	"relicmarket/core/types"
	"relicmarket/native/market"
	"relicmarket/storage"
)

// StateProcessor executes market operations against the backing store. Every
// transaction runs on a fresh overlay: the envelope guard and the engine see
// a consistent snapshot, and either all the operation's writes land or none
// do. Callers serialize access; the processor performs no locking itself.
type StateProcessor struct {
	db     storage.Database
	engine *market.Engine
	vault  [20]byte
	round  uint64
	events []types.Event
}

// NewStateProcessor creates a processor over the given database, resuming
// the ledger round from the store.
func NewStateProcessor(db storage.Database) (*StateProcessor, error) {
	sp := &StateProcessor{
		db:     db,
		engine: market.NewEngine(),
		vault:  market.VaultAddress(),
	}
	round, err := nhstate.NewManager(db).RoundGet()
	if err != nil {
		return nil, err
	}
	sp.round = round
	sp.engine.SetVault(sp.vault)
	sp.engine.SetRoundFunc(func() uint64 { return sp.round })
	return sp, nil
}

// Round returns the current ledger round.
func (sp *StateProcessor) Round() uint64 { return sp.round }

// AdvanceRound moves the ledger clock forward one round, persists the new
// value and returns it. In a full deployment this is driven by block
// production. The in-memory clock only moves once the store accepted the
// write, so it never runs ahead of what a reopened node would load.
func (sp *StateProcessor) AdvanceRound() (uint64, error) {
	if err := nhstate.NewManager(sp.db).RoundPut(sp.round + 1); err != nil {
		return sp.round, err
	}
	sp.round++
	return sp.round, nil
}

// Events returns the events emitted by recently committed operations. The
// log is a volatile debugging surface: it is bounded and not persisted, so a
// reopened node starts with an empty log.
func (sp *StateProcessor) Events() []types.Event {
	out := make([]types.Event, len(sp.events))
	copy(out, sp.events)
	return out
}

// Vault returns the address of the market vault.
func (sp *StateProcessor) Vault() [20]byte { return sp.vault }

// Manager returns a read view of the committed state.
func (sp *StateProcessor) Manager() *nhstate.Manager {
	return nhstate.NewManager(sp.db)
}

// maxRetainedEvents caps the in-memory event log; older events fall off the
// front once the cap is reached.
const maxRetainedEvents = 1024

type initializePayload struct {
	Creator          [20]byte `json:"creator"`
	ItemID           uint64   `json:"itemId"`
	RoyaltyRateMilli uint64   `json:"royaltyRateMilli"`
	WaitingRounds    uint64   `json:"waitingRounds"`
}

type offerPayload struct {
	Price uint64 `json:"price"`
}

type commitPayload struct {
	ItemID uint64 `json:"itemId"`
}

// ApplyTransaction validates and executes a single operation. A returned
// error means nothing changed: the overlay holding the operation's writes is
// discarded together with its events.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) error {
	if err := market.ValidateEnvelope(tx); err != nil {
		return err
	}

	overlay := storage.NewOverlay(sp.db)
	manager := nhstate.NewManager(overlay)
	collector := &events.Collector{}

	sp.engine.SetState(manager)
	sp.engine.SetEffects(market.NewExecutor(manager, sp.vault))
	sp.engine.SetEmitter(collector)

	var err error
	switch tx.Type {
	case types.TxTypeInitializeMarket:
		var payload initializePayload
		if err = decodePayload(tx.Data, &payload); err != nil {
			break
		}
		err = sp.engine.Initialize(payload.Creator, payload.ItemID, payload.RoyaltyRateMilli, payload.WaitingRounds)
	case types.TxTypeOfferSale:
		var payload offerPayload
		if err = decodePayload(tx.Data, &payload); err != nil {
			break
		}
		err = sp.engine.Offer(tx.From, payload.Price)
	case types.TxTypeCommitPayment:
		var payload commitPayload
		if err = decodePayload(tx.Data, &payload); err != nil {
			break
		}
		err = sp.engine.CommitPayment(tx.From, tx.Accounts[0], payload.ItemID, tx.Payment)
	case types.TxTypeFinalizeSale:
		err = sp.engine.Finalize(tx.From, tx.Accounts[0])
	case types.TxTypeRefundSale:
		err = sp.engine.Refund(tx.From, tx.Accounts[0])
	case types.TxTypeClaimFees:
		err = sp.engine.ClaimFees(tx.From)
	default:
		err = fmt.Errorf("%w: unknown command 0x%02x", market.ErrMalformedRequest, byte(tx.Type))
	}
	if err != nil {
		return err
	}
	sender, err := manager.GetAccount(tx.From)
	if err != nil {
		return err
	}
	sender.Nonce++
	if err := manager.PutAccount(tx.From, sender); err != nil {
		return err
	}
	if err := overlay.Commit(); err != nil {
		return err
	}
	sp.events = append(sp.events, collector.Drain()...)
	if excess := len(sp.events) - maxRetainedEvents; excess > 0 {
		sp.events = append([]types.Event(nil), sp.events[excess:]...)
	}
	return nil
}

func decodePayload(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", market.ErrMalformedRequest)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", market.ErrMalformedRequest, err)
	}
	return nil
}

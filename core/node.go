package core

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relicmarket/core/types"
	"relicmarket/native/market"
	"relicmarket/observability"
	"relicmarket/storage"
)

// Node is the central controller, wiring the state processor to the backing
// database and serialising command submission.
type Node struct {
	db      storage.Database
	state   *StateProcessor
	logger  *slog.Logger
	stateMu sync.Mutex
}

// NewNode opens the state over db. When genesisPath is non-empty and the
// market record does not exist yet, the genesis file is loaded and applied.
func NewNode(db storage.Database, genesisPath string, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	state, err := NewStateProcessor(db)
	if err != nil {
		return nil, err
	}
	node := &Node{
		db:     db,
		state:  state,
		logger: logger,
	}

	_, initialized, err := node.state.Manager().ListingGet()
	if err != nil {
		return nil, err
	}
	if !initialized && genesisPath != "" {
		genesis, err := LoadGenesis(genesisPath)
		if err != nil {
			return nil, err
		}
		if err := node.state.ApplyGenesis(genesis); err != nil {
			return nil, err
		}
		logger.Info("applied genesis state", "path", genesisPath)
	}
	return node, nil
}

func commandName(t types.TxType) string {
	switch t {
	case types.TxTypeInitializeMarket:
		return "initialize"
	case types.TxTypeOfferSale:
		return "offer"
	case types.TxTypeCommitPayment:
		return "commit"
	case types.TxTypeFinalizeSale:
		return "finalize"
	case types.TxTypeRefundSale:
		return "refund"
	case types.TxTypeClaimFees:
		return "claim_fees"
	default:
		return "unknown"
	}
}

// SubmitTransaction executes one market command. Submission is serialised;
// an error means no state changed.
func (n *Node) SubmitTransaction(tx *types.Transaction) error {
	if tx == nil {
		return market.ErrMalformedRequest
	}
	command := commandName(tx.Type)
	start := time.Now()

	n.stateMu.Lock()
	err := n.state.ApplyTransaction(tx)
	n.stateMu.Unlock()

	observability.MarketMetrics().ObserveOperation(command, time.Since(start), err)
	if err != nil {
		n.logger.Warn("market command rejected", "command", command, "err", err)
		return err
	}
	if hash, hashErr := tx.Hash(); hashErr == nil {
		n.logger.Info("market command applied", "command", command, "hash", fmt.Sprintf("%x", hash))
	} else {
		n.logger.Info("market command applied", "command", command)
	}
	return nil
}

// AdvanceRound moves the ledger clock forward one round. The round is
// persisted before it takes effect.
func (n *Node) AdvanceRound() (uint64, error) {
	n.stateMu.Lock()
	round, err := n.state.AdvanceRound()
	n.stateMu.Unlock()
	if err != nil {
		return round, err
	}
	observability.MarketMetrics().SetRound(round)
	return round, nil
}

// CurrentRound returns the ledger round the node is at.
func (n *Node) CurrentRound() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Round()
}

// VaultAddress returns the deterministic market vault address.
func (n *Node) VaultAddress() [20]byte {
	return n.state.Vault()
}

// GetAccount returns the account record for addr, zero-valued when absent.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().GetAccount(addr)
}

// ItemBalance returns how many units of itemID addr holds.
func (n *Node) ItemBalance(addr [20]byte, itemID uint64) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().ItemBalance(addr, itemID)
}

// GetListing returns the market record, or ok=false when the market has not
// been initialized.
func (n *Node) GetListing() (*market.Listing, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().ListingGet()
}

// GetSale returns the sale record bound to seller, or ok=false when the
// seller has no active offer.
func (n *Node) GetSale(seller [20]byte) (*market.Sale, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Manager().SaleGet(seller)
}

// Events returns the events emitted by recently committed commands. The log
// is bounded and volatile; it is a debugging surface, not a durable journal.
func (n *Node) Events() []types.Event {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Events()
}

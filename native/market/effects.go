package market

import (
	"fmt"

	"relicmarket/core/types"
)

type effectState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	ItemBalance(addr [20]byte, itemID uint64) (uint64, error)
	SetItemBalance(addr [20]byte, itemID uint64, balance uint64) error
}

// Executor issues the two external effects a handler can request: paying
// native currency out of the market vault and moving the escrowed item. Each
// effect burns one ledger fee unit from the vault on top of whatever it
// moves, so a handler must have reserved that cost before promising any
// residual payment. Effects apply against the same overlay as the invoking
// handler and therefore commit or abort with it.
type Executor struct {
	state effectState
	vault [20]byte
}

func NewExecutor(state effectState, vault [20]byte) *Executor {
	return &Executor{state: state, vault: vault}
}

// Pay sends amount from the vault to the recipient.
func (x *Executor) Pay(to [20]byte, amount uint64) error {
	if x == nil || x.state == nil {
		return errNilState
	}
	if addOverflows(amount, LedgerFeeUnit) {
		return fmt.Errorf("%w: payment plus execution fee", ErrArithmeticOverflow)
	}
	if err := x.debitVault(amount + LedgerFeeUnit); err != nil {
		return err
	}
	recipient, err := x.state.GetAccount(to)
	if err != nil {
		return err
	}
	if addOverflows(recipient.Balance, amount) {
		return fmt.Errorf("%w: recipient balance", ErrArithmeticOverflow)
	}
	recipient.Balance += amount
	return x.state.PutAccount(to, recipient)
}

// TransferItem moves one unit of the item between accounts.
func (x *Executor) TransferItem(from, to [20]byte, itemID uint64) error {
	if x == nil || x.state == nil {
		return errNilState
	}
	if err := x.debitVault(LedgerFeeUnit); err != nil {
		return err
	}
	held, err := x.state.ItemBalance(from, itemID)
	if err != nil {
		return err
	}
	if held < 1 {
		return fmt.Errorf("%w: sender does not custody item %d", ErrOwnershipViolation, itemID)
	}
	if err := x.state.SetItemBalance(from, itemID, held-1); err != nil {
		return err
	}
	receiving, err := x.state.ItemBalance(to, itemID)
	if err != nil {
		return err
	}
	return x.state.SetItemBalance(to, itemID, receiving+1)
}

func (x *Executor) debitVault(total uint64) error {
	vault, err := x.state.GetAccount(x.vault)
	if err != nil {
		return err
	}
	if vault.Balance < total {
		return fmt.Errorf("%w: need %d, vault holds %d", ErrVaultUnderfunded, total, vault.Balance)
	}
	vault.Balance -= total
	return x.state.PutAccount(x.vault, vault)
}

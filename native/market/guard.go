package market

import (
	"fmt"

	"relicmarket/core/types"
)

// ValidateEnvelope enforces the non-divertibility rules on an incoming
// transaction before any handler state is touched. Settlement proceeds must
// go exactly to the computed recipients: an envelope that requests rekeying,
// leftover-balance redirection or holding-closure redirection is rejected
// outright, as is any envelope whose leg shape does not match its command.
func ValidateEnvelope(tx *types.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformedRequest)
	}
	if len(tx.RekeyTo) != 0 {
		return fmt.Errorf("%w: rekey requested", ErrUnsafeEnvelope)
	}
	if len(tx.CloseRemainderTo) != 0 {
		return fmt.Errorf("%w: balance close-out requested", ErrUnsafeEnvelope)
	}
	if len(tx.ItemCloseTo) != 0 {
		return fmt.Errorf("%w: holding close-out requested", ErrUnsafeEnvelope)
	}

	switch tx.Type {
	case types.TxTypeCommitPayment:
		if tx.Payment == nil {
			return fmt.Errorf("%w: commit requires a bundled payment", ErrMalformedRequest)
		}
		if tx.Payment.From != tx.From {
			return fmt.Errorf("%w: payment must originate from the caller", ErrUnsafeEnvelope)
		}
		if len(tx.Accounts) != 1 {
			return fmt.Errorf("%w: commit references exactly the seller account", ErrMalformedRequest)
		}
	case types.TxTypeFinalizeSale, types.TxTypeRefundSale:
		if tx.Payment != nil {
			return fmt.Errorf("%w: unexpected payment leg", ErrMalformedRequest)
		}
		if len(tx.Accounts) != 1 {
			return fmt.Errorf("%w: settlement references exactly the seller account", ErrMalformedRequest)
		}
	case types.TxTypeInitializeMarket, types.TxTypeOfferSale, types.TxTypeClaimFees:
		if tx.Payment != nil {
			return fmt.Errorf("%w: unexpected payment leg", ErrMalformedRequest)
		}
		if len(tx.Accounts) != 0 {
			return fmt.Errorf("%w: unexpected account references", ErrMalformedRequest)
		}
	default:
		return fmt.Errorf("%w: unknown command 0x%02x", ErrMalformedRequest, byte(tx.Type))
	}
	return nil
}

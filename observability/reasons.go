package observability

import (
	"errors"

	"relicmarket/native/market"
)

// errorReason collapses engine errors into a small, bounded label set so the
// error counter does not explode in cardinality.
func errorReason(err error) string {
	switch {
	case errors.Is(err, market.ErrMalformedRequest):
		return "malformed"
	case errors.Is(err, market.ErrUnauthorizedCaller):
		return "unauthorized"
	case errors.Is(err, market.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, market.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, market.ErrOwnershipViolation):
		return "ownership"
	case errors.Is(err, market.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, market.ErrUnsafeEnvelope):
		return "unsafe_envelope"
	case errors.Is(err, market.ErrNothingToClaim):
		return "nothing_to_claim"
	case errors.Is(err, market.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, market.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, market.ErrVaultUnderfunded):
		return "vault_underfunded"
	default:
		return "internal"
	}
}

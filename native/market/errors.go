package market

import "errors"

// Every handler failure maps onto one of these sentinels. A failure aborts
// the whole operation; the processor discards all buffered state changes.
var (
	ErrMalformedRequest   = errors.New("market: malformed request")
	ErrUnauthorizedCaller = errors.New("market: unauthorized caller")
	ErrInvalidAmount      = errors.New("market: invalid amount")
	ErrStateConflict      = errors.New("market: conflicting sale state")
	ErrOwnershipViolation = errors.New("market: ownership violation")
	ErrArithmeticOverflow = errors.New("market: arithmetic overflow")
	ErrUnsafeEnvelope     = errors.New("market: unsafe envelope")
	ErrNothingToClaim     = errors.New("market: nothing to claim")
	ErrNotInitialized     = errors.New("market: not initialized")
	ErrAlreadyInitialized = errors.New("market: already initialized")
	ErrVaultUnderfunded   = errors.New("market: vault underfunded")
)

var (
	errNilState   = errors.New("market engine: state not configured")
	errNilEffects = errors.New("market engine: effect executor not configured")
)

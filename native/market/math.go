package market

import (
	"fmt"
	"math"
)

// All amounts are expressed in the ledger's smallest native unit.
const (
	// LedgerFeeUnit is the fixed execution cost of a single outbound effect.
	LedgerFeeUnit uint64 = 1000

	// ServiceMargin is reserved out of every sale price to cover the two
	// outbound effects a finalized settlement issues.
	ServiceMargin uint64 = 2 * LedgerFeeUnit

	// rateScale expresses royalty rates in thousandths.
	rateScale uint64 = 1000

	// roundHalf is the remainder above which a computed fee rounds up.
	roundHalf uint64 = 500
)

// CheckFeeSafe verifies that ComputeFee(amount, rateMilli) cannot overflow
// the native unsigned width. Callers must invoke it before ComputeFee.
func CheckFeeSafe(amount, rateMilli uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: fee base must be positive", ErrArithmeticOverflow)
	}
	if rateMilli > math.MaxUint64/amount {
		return fmt.Errorf("%w: %d * %d exceeds native width", ErrArithmeticOverflow, amount, rateMilli)
	}
	return nil
}

// ComputeFee returns the royalty owed on amount at a rate expressed in
// thousandths, rounding half-up. Negligible amounts whose scaled product
// stays below one thousandth pay no fee; a rate at or above the scale caps
// the fee at the full amount.
func ComputeFee(amount, rateMilli uint64) uint64 {
	product := amount * rateMilli
	quotient := product / rateScale
	remainder := product % rateScale
	switch {
	case rateMilli == 0 || quotient == 0:
		return 0
	case rateMilli >= rateScale:
		return amount
	case remainder > roundHalf:
		return quotient + 1
	default:
		return quotient
	}
}

// addOverflows reports whether a+b exceeds the native unsigned width.
func addOverflows(a, b uint64) bool {
	return a > math.MaxUint64-b
}

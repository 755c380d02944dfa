package market

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeFeeRounding(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		rate   uint64
		want   uint64
	}{
		{"exact thousandth", 998000, 35, 34930},
		{"zero rate", 998000, 0, 0},
		{"negligible amount", 3, 35, 0},
		{"rate at scale pays full amount", 12345, 1000, 12345},
		{"remainder of exactly half stays down", 100, 15, 1},
		{"remainder above half rounds up", 567, 19, 11},
		{"one thousandth exact", 1000, 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, CheckFeeSafe(tc.amount, tc.rate))
			require.Equal(t, tc.want, ComputeFee(tc.amount, tc.rate))
		})
	}
}

func TestComputeFeeNeverExceedsAmount(t *testing.T) {
	amounts := []uint64{1, 2, 999, 1000, 1001, 999_999, 1_000_000, math.MaxUint64 / 1000}
	rates := []uint64{1, 35, 499, 500, 501, 999, 1000}
	for _, amount := range amounts {
		for _, rate := range rates {
			require.NoError(t, CheckFeeSafe(amount, rate))
			fee := ComputeFee(amount, rate)
			require.LessOrEqual(t, fee, amount, "amount=%d rate=%d", amount, rate)
			if rate == 1000 {
				require.Equal(t, amount, fee)
			}
		}
	}
}

func TestComputeFeeRoundingLaw(t *testing.T) {
	for amount := uint64(1); amount < 4000; amount += 7 {
		for _, rate := range []uint64{1, 35, 250, 999} {
			product := amount * rate
			want := product / 1000
			if want > 0 && product%1000 > 500 {
				want++
			}
			require.Equal(t, want, ComputeFee(amount, rate), "amount=%d rate=%d", amount, rate)
		}
	}
}

func TestCheckFeeSafe(t *testing.T) {
	require.NoError(t, CheckFeeSafe(1, math.MaxUint64))
	require.NoError(t, CheckFeeSafe(math.MaxUint64/1000, 1000))

	err := CheckFeeSafe(0, 35)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	err = CheckFeeSafe(math.MaxUint64/1000+1, 1000)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	err = CheckFeeSafe(math.MaxUint64, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestAddOverflows(t *testing.T) {
	require.False(t, addOverflows(math.MaxUint64-1, 1))
	require.True(t, addOverflows(math.MaxUint64, 1))
	require.False(t, addOverflows(0, math.MaxUint64))
}

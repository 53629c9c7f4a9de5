package utils

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL smallest ledger units per native token
const LamportsPerSOL = 1_000_000_000

// LamportDecimals fractional digits of the native token
const LamportDecimals = 9

var lamportsScale = decimal.New(1, LamportDecimals)

// ToLamports converts a decimal token amount into lamports exactly.
// Amounts finer than one lamport or outside int64 range are rejected.
func ToLamports(amount decimal.Decimal) (int64, error) {
	scaled := amount.Mul(lamportsScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), LamportDecimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("amount %s out of range", amount.String())
	}
	return scaled.IntPart(), nil
}

// ParseLamports parses a decimal string such as "0.01" into lamports
func ParseLamports(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return ToLamports(d)
}

// FromLamports renders lamports as a decimal token amount
func FromLamports(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -LamportDecimals)
}

// ClampLimit bounds a page size, falling back to def when unset
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	return Min(limit, max)
}

// Min returns the smaller of a or b
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package safe

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DebitNonNegative subtracts amount from balance and panics if the result is negative.
// Used on every ledger write in limited mode; a negative balance means conservation broke.
func DebitNonNegative(balance, amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		panic(fmt.Sprintf("CORE_SAFE_NEGATIVE_DEBIT: amount=%s", amount))
	}
	out := balance.Sub(amount)
	if out.IsNegative() {
		panic(fmt.Sprintf("CORE_SAFE_NEGATIVE_BALANCE: balance=%s amount=%s", balance, amount))
	}
	return out
}

// SubNonNegative subtracts b from a and panics if the result is negative or overflows.
func SubNonNegative(a, b int64) int64 {
	out := SafeSub(a, b)
	if out < 0 {
		panic(fmt.Sprintf("CORE_SAFE_NEGATIVE_QTY: have=%d take=%d", a, b))
	}
	return out
}

// Ratio returns a/b, or 0 when b is zero or the result is not finite.
func Ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

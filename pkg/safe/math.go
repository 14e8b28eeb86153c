// Package safe holds the checked arithmetic every ledger write goes through.
// Violations panic with a CORE_SAFE_* tag; they mean conservation is broken.
package safe

import (
	"math"
)

// SafeAdd performs int64 addition and panics on overflow/underflow.
func SafeAdd(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic("CORE_SAFE_ADD_OVERFLOW")
	}
	return a + b
}

// SafeSub performs int64 subtraction and panics on overflow/underflow.
func SafeSub(a, b int64) int64 {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		panic("CORE_SAFE_SUB_OVERFLOW")
	}
	return a - b
}

// SumInt64 adds every value with overflow checks.
func SumInt64(vs ...int64) int64 {
	var total int64
	for _, v := range vs {
		total = SafeAdd(total, v)
	}
	return total
}

package safe

import (
	"testing"
)

// FuzzSafeAdd checks that a non-panicking add is exact and reversible.
func FuzzSafeAdd(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(1), int64(2))
	f.Add(int64(-1), int64(1))
	f.Add(int64(9223372036854775807), int64(0))
	f.Add(int64(-9223372036854775808), int64(0))

	f.Fuzz(func(t *testing.T, a, b int64) {
		defer func() { recover() }() // overflow panics are expected
		sum := SafeAdd(a, b)
		if SafeSub(sum, b) != a {
			t.Fatalf("(%d + %d) - %d != %d", a, b, b, a)
		}
	})
}

// FuzzSafeSub tests SafeSub with fuzzing.
func FuzzSafeSub(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(10), int64(5))
	f.Add(int64(-1), int64(-1))
	f.Add(int64(9223372036854775807), int64(0))
	f.Add(int64(-9223372036854775808), int64(0))

	f.Fuzz(func(t *testing.T, a, b int64) {
		defer func() { recover() }()
		_ = SafeSub(a, b)
	})
}

package safe

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDebitNonNegative(t *testing.T) {
	got := DebitNonNegative(decimal.NewFromInt(100), decimal.RequireFromString("99.5"))
	if !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("got %s, want 0.5", got)
	}

	t.Run("Overdraw", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		DebitNonNegative(decimal.NewFromInt(1), decimal.NewFromInt(2))
	})

	t.Run("Negative Amount", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		DebitNonNegative(decimal.NewFromInt(1), decimal.NewFromInt(-2))
	})
}

func TestSubNonNegative(t *testing.T) {
	if got := SubNonNegative(10, 10); got != 0 {
		t.Errorf("got %d, want 0", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Should have panicked")
		}
	}()
	SubNonNegative(5, 6)
}

func TestRatioAndClamp(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"Ratio", Ratio(1, 4), 0.25},
		{"Ratio Zero Denominator", Ratio(1, 0), 0},
		{"Ratio Inf", Ratio(math.Inf(1), 1), 0},
		{"Clamp Low", Clamp01(-0.5), 0},
		{"Clamp High", Clamp01(3), 1},
		{"Clamp NaN", Clamp01(math.NaN()), 0},
		{"Clamp Mid", Clamp01(0.3), 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

// FuzzClamp01 tests that Clamp01 always lands in range.
func FuzzClamp01(f *testing.F) {
	f.Add(0.0)
	f.Add(-1.0)
	f.Add(2.0)
	f.Add(math.Inf(1))

	f.Fuzz(func(t *testing.T, v float64) {
		got := Clamp01(v)
		if got < 0 || got > 1 {
			t.Fatalf("Clamp01(%v) = %v", v, got)
		}
	})
}

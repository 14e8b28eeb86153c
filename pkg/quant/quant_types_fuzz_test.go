package quant

import (
	"testing"

	"github.com/shopspring/decimal"
)

// FuzzFloorQtySats checks that snapping never rounds a volume up.
func FuzzFloorQtySats(f *testing.F) {
	f.Add(0.0)
	f.Add(1.0)
	f.Add(0.00000001)
	f.Add(14.999999999)
	f.Add(-2.0)

	f.Fuzz(func(t *testing.T, val float64) {
		q := FloorQtySats(val)
		if q < 0 {
			t.Fatalf("negative quantity %d for %v", q, val)
		}
		if val > 0 && val < 1e9 && q.Float64() > val {
			t.Fatalf("FloorQtySats(%v) = %v rounds up", val, q.Float64())
		}
	})
}

// FuzzMaxAffordable checks that the affordable quantity never overspends.
func FuzzMaxAffordable(f *testing.F) {
	f.Add(int64(1000), 100.0)
	f.Add(int64(1), 0.5)
	f.Add(int64(15000), 97.25)

	f.Fuzz(func(t *testing.T, cash int64, price float64) {
		if cash < 0 || cash > 1e12 || !(price >= 1e-4 && price <= 1e9) {
			return
		}
		c := decimal.NewFromInt(cash)
		q := MaxAffordable(c, price)
		if PriceDecimal(price).Mul(q.Decimal()).GreaterThan(c) {
			t.Fatalf("MaxAffordable(%d, %v) = %d overspends", cash, price, q)
		}
	})
}

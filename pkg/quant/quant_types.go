package quant

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// QtySats represents share quantity multiplied by 100,000,000 (10^8).
// E.g., 1.5 shares = 150,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	QtyScale    = 100000000
	QtyDecimals = 8
)

// ToQtySats converts a float64 to QtySats, rounding to the nearest unit.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

// FloorQtySats converts a float64 to QtySats, truncating toward zero.
// Order volumes are snapped with this so a snapped volume never exceeds the draw.
func FloorQtySats(f float64) QtySats {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt64/QtyScale {
		return QtySats(math.MaxInt64)
	}
	return QtySats(math.Floor(f * QtyScale))
}

// Float64 returns the quantity in whole shares.
func (q QtySats) Float64() float64 {
	return float64(q) / QtyScale
}

// Decimal returns the exact decimal value of the quantity.
func (q QtySats) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -QtyDecimals)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", q.Float64())
}

// QtyFromDecimal truncates a decimal share amount to QtySats.
func QtyFromDecimal(d decimal.Decimal) QtySats {
	return QtySats(d.Shift(QtyDecimals).Truncate(0).IntPart())
}

// PriceDecimal converts a clearing or limit price to an exact decimal.
// The conversion uses the shortest representation of the float.
func PriceDecimal(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p)
}

// MaxAffordable returns the largest quantity whose cost at price does not exceed cash.
// The quotient is exact: cash = price*q + r with 0 <= r < price*1e-8.
func MaxAffordable(cash decimal.Decimal, price float64) QtySats {
	if price <= 0 || !cash.IsPositive() {
		return 0
	}
	q, _ := cash.QuoRem(PriceDecimal(price), QtyDecimals)
	return QtyFromDecimal(q)
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

package domain

// OrderCurves holds the aggregated demand and supply for one round.
// BuyCurve[i] is the volume willing to buy at or above PriceGrid[i];
// SellCurve[i] is the volume willing to sell at or below PriceGrid[i].
type OrderCurves struct {
	PriceGrid []float64 `json:"price_grid"`
	BuyCurve  []float64 `json:"buy_curve"`
	SellCurve []float64 `json:"sell_curve"`
}

// Len returns the number of grid points.
func (c OrderCurves) Len() int {
	return len(c.PriceGrid)
}

// TotalBuy is the whole demand submitted this round (the curve's lowest-price value).
func (c OrderCurves) TotalBuy() float64 {
	if len(c.BuyCurve) == 0 {
		return 0
	}
	return c.BuyCurve[0]
}

// TotalSell is the whole supply submitted this round (the curve's highest-price value).
func (c OrderCurves) TotalSell() float64 {
	if len(c.SellCurve) == 0 {
		return 0
	}
	return c.SellCurve[len(c.SellCurve)-1]
}

// Imbalance returns (demand-supply)/(demand+supply), or 0 for an empty round.
func (c OrderCurves) Imbalance() float64 {
	b, s := c.TotalBuy(), c.TotalSell()
	if b+s == 0 {
		return 0
	}
	return (b - s) / (b + s)
}

// Clone returns a deep copy so callers cannot mutate retained curves.
func (c OrderCurves) Clone() OrderCurves {
	return OrderCurves{
		PriceGrid: append([]float64(nil), c.PriceGrid...),
		BuyCurve:  append([]float64(nil), c.BuyCurve...),
		SellCurve: append([]float64(nil), c.SellCurve...),
	}
}

package auction

import (
	"math"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

// Result is the equilibrium of one round.
type Result struct {
	Price  float64
	Volume float64
	Qty    quant.QtySats
	// Crossed is false for the no-trade branch.
	Crossed bool
	// TieLow and TieHigh are the grid indices bounding the maximal set.
	TieLow, TieHigh int
}

// Clear finds the price maximizing matched volume min(demand, supply).
//
// The maximal set is contiguous because demand is non-increasing and supply is
// non-decreasing. Its representative price is the mean of its lowest and highest
// grid prices; the volume is read at the largest grid point not above that mean.
// When nothing crosses the price stays at previousPrice with zero volume.
func Clear(curves domain.OrderCurves, previousPrice float64) Result {
	noTrade := Result{Price: previousPrice, TieLow: -1, TieHigh: -1}
	n := curves.Len()
	if n == 0 || len(curves.BuyCurve) != n || len(curves.SellCurve) != n {
		return noTrade
	}

	best := 0.0
	lo, hi := -1, -1
	for i := 0; i < n; i++ {
		s := math.Min(curves.BuyCurve[i], curves.SellCurve[i])
		switch {
		case s > best:
			best, lo, hi = s, i, i
		case s == best && lo >= 0:
			hi = i
		}
	}
	if best <= 0 {
		return noTrade
	}

	price := (curves.PriceGrid[lo] + curves.PriceGrid[hi]) / 2
	at := lo
	for at+1 <= hi && curves.PriceGrid[at+1] <= price {
		at++
	}
	volume := math.Min(curves.BuyCurve[at], curves.SellCurve[at])

	return Result{
		Price:   price,
		Volume:  volume,
		Qty:     quant.ToQtySats(volume),
		Crossed: true,
		TieLow:  lo,
		TieHigh: hi,
	}
}

package auction

import (
	"sort"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

type level struct {
	price float64
	qty   quant.QtySats
}

// Aggregate builds the cumulative demand and supply curves over grid.
// Volumes are summed in integer sats, so the result is identical for every
// permutation of orders.
func Aggregate(orders []domain.Order, grid []float64) domain.OrderCurves {
	var buys, sells []level
	for _, o := range orders {
		if o.IsBuy() {
			buys = append(buys, level{o.LimitPrice, o.Qty})
		} else {
			sells = append(sells, level{o.LimitPrice, o.Qty})
		}
	}
	byPrice := func(ls []level) {
		sort.Slice(ls, func(i, j int) bool { return ls[i].price < ls[j].price })
	}
	byPrice(buys)
	byPrice(sells)

	// suffix[i] = demand from buys[i:], all priced at or above buys[i].
	suffix := make([]quant.QtySats, len(buys)+1)
	for i := len(buys) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + buys[i].qty
	}

	curves := domain.OrderCurves{
		PriceGrid: append([]float64(nil), grid...),
		BuyCurve:  make([]float64, len(grid)),
		SellCurve: make([]float64, len(grid)),
	}

	var supply quant.QtySats
	bi, si := 0, 0
	for i, p := range grid {
		for bi < len(buys) && buys[bi].price < p {
			bi++
		}
		for si < len(sells) && sells[si].price <= p {
			supply += sells[si].qty
			si++
		}
		curves.BuyCurve[i] = suffix[bi].Float64()
		curves.SellCurve[i] = supply.Float64()
	}
	return curves
}

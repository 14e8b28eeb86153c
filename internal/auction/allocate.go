package auction

import (
	"sort"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"github.com/shopspring/decimal"
)

// Allocation is the set of fills produced by one clearing.
type Allocation struct {
	Price float64
	Qty   quant.QtySats
	Fills []domain.Fill
}

// BuyQty sums filled buy quantity.
func (a Allocation) BuyQty() quant.QtySats {
	return a.sideQty(domain.SideBuy)
}

// SellQty sums filled sell quantity.
func (a Allocation) SellQty() quant.QtySats {
	return a.sideQty(domain.SideSell)
}

func (a Allocation) sideQty(side domain.Side) quant.QtySats {
	qs := make([]int64, 0, len(a.Fills))
	for _, f := range a.Fills {
		if f.Side == side {
			qs = append(qs, int64(f.Qty))
		}
	}
	return quant.QtySats(safe.SumInt64(qs...))
}

// Allocate splits the cleared quantity across eligible orders.
//
// Buys with limit >= price and sells with limit <= price are eligible. The
// executed quantity is the cleared quantity capped by each side's eligible
// total. Each side is split pro rata to order size with the largest-remainder
// method; equal remainders go to the lower trader id, then the earlier order.
// Both sides therefore sum to exactly the executed quantity.
func Allocate(orders []domain.Order, res Result, day int) Allocation {
	alloc := Allocation{Price: res.Price}
	if !res.Crossed || res.Qty <= 0 {
		return alloc
	}

	var buys, sells []int
	var buyTotal, sellTotal quant.QtySats
	for i, o := range orders {
		switch {
		case o.IsBuy() && o.LimitPrice >= res.Price:
			buys = append(buys, i)
			buyTotal += o.Qty
		case !o.IsBuy() && o.LimitPrice <= res.Price:
			sells = append(sells, i)
			sellTotal += o.Qty
		}
	}

	exec := min(res.Qty, buyTotal, sellTotal)
	if exec <= 0 {
		return alloc
	}
	alloc.Qty = exec

	alloc.Fills = append(alloc.Fills, prorate(orders, buys, buyTotal, exec, res.Price, day)...)
	alloc.Fills = append(alloc.Fills, prorate(orders, sells, sellTotal, exec, res.Price, day)...)
	return alloc
}

func prorate(orders []domain.Order, idx []int, total, target quant.QtySats, price float64, day int) []domain.Fill {
	type share struct {
		pos  int
		base quant.QtySats
		rem  decimal.Decimal
	}

	t := decimal.NewFromInt(int64(total))
	e := decimal.NewFromInt(int64(target))
	shares := make([]share, len(idx))
	var assigned quant.QtySats
	for k, i := range idx {
		q, r := decimal.NewFromInt(int64(orders[i].Qty)).Mul(e).QuoRem(t, 0)
		shares[k] = share{pos: k, base: quant.QtySats(q.IntPart()), rem: r}
		assigned += shares[k].base
	}

	ranked := make([]int, len(shares))
	for k := range ranked {
		ranked[k] = k
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		sa, sb := shares[ranked[a]], shares[ranked[b]]
		if c := sa.rem.Cmp(sb.rem); c != 0 {
			return c > 0
		}
		ida, idb := orders[idx[sa.pos]].TraderID, orders[idx[sb.pos]].TraderID
		if ida != idb {
			return ida < idb
		}
		return sa.pos < sb.pos
	})
	for left := target - assigned; left > 0; left-- {
		k := ranked[int(target-assigned-left)]
		shares[k].base++
	}

	fills := make([]domain.Fill, 0, len(idx))
	for k, i := range idx {
		if shares[k].base == 0 {
			continue
		}
		o := orders[i]
		fills = append(fills, domain.Fill{
			Day:      day,
			TraderID: o.TraderID,
			Side:     o.Side,
			Price:    price,
			Qty:      shares[k].base,
		})
	}
	return fills
}

package auction

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"pgregory.net/rapid"
)

func orderGen() *rapid.Generator[domain.Order] {
	return rapid.Custom(func(t *rapid.T) domain.Order {
		side := domain.SideBuy
		if rapid.Bool().Draw(t, "sell") {
			side = domain.SideSell
		}
		price := rapid.Float64Range(80, 120).Draw(t, "price")
		qty := quant.QtySats(rapid.Int64Range(1, 20*quant.QtyScale).Draw(t, "qty"))
		id := fmt.Sprintf("trader_%04d", rapid.IntRange(0, 30).Draw(t, "id"))
		o, err := domain.NewOrderQty(id, side, price, qty)
		if err != nil {
			t.Fatalf("generator produced invalid order: %v", err)
		}
		return o
	})
}

func TestProperty_AggregateCommutative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		orders := rapid.SliceOfN(orderGen(), 0, 60).Draw(t, "orders")
		shuffled := rapid.Permutation(orders).Draw(t, "shuffled")
		grid := BuildGrid(orders, 100, 0.5, 0)

		a := Aggregate(orders, grid)
		b := Aggregate(shuffled, grid)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("curves differ under permutation")
		}
	})
}

func TestProperty_CurvesMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		orders := rapid.SliceOfN(orderGen(), 0, 60).Draw(t, "orders")
		c := Aggregate(orders, BuildGrid(orders, 100, 0.25, 0))
		if len(c.BuyCurve) != c.Len() || len(c.SellCurve) != c.Len() {
			t.Fatalf("curve lengths differ from grid")
		}
		for i := 1; i < c.Len(); i++ {
			if c.BuyCurve[i] > c.BuyCurve[i-1] {
				t.Fatalf("buy curve increases at %d", i)
			}
			if c.SellCurve[i] < c.SellCurve[i-1] {
				t.Fatalf("sell curve decreases at %d", i)
			}
		}
	})
}

func TestProperty_ClearingMonotoneInBuyPrices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		orders := rapid.SliceOfN(orderGen(), 1, 60).Draw(t, "orders")
		factor := rapid.Float64Range(1, 1.5).Draw(t, "factor")

		scaled := make([]domain.Order, len(orders))
		for i, o := range orders {
			if o.IsBuy() {
				o.LimitPrice *= factor
			}
			scaled[i] = o
		}

		grid := BuildGrid(append(append([]domain.Order(nil), orders...), scaled...), 100, 0.5, 0)
		before := Clear(Aggregate(orders, grid), 100)
		after := Clear(Aggregate(scaled, grid), 100)
		if after.Volume < before.Volume {
			t.Fatalf("volume fell from %v to %v after raising bids by %v", before.Volume, after.Volume, factor)
		}
	})
}

func TestProperty_NoCrossingHoldsPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		split := rapid.Float64Range(90, 110).Draw(t, "split")
		n := rapid.IntRange(0, 40).Draw(t, "n")
		var orders []domain.Order
		for i := 0; i < n; i++ {
			qty := quant.QtySats(rapid.Int64Range(1, 10*quant.QtyScale).Draw(t, "qty"))
			gap := rapid.Float64Range(0.5, 10).Draw(t, "gap")
			side, price := domain.SideBuy, split-gap
			if rapid.Bool().Draw(t, "sell") {
				side, price = domain.SideSell, split+gap
			}
			o, err := domain.NewOrderQty(fmt.Sprintf("t%d", i), side, price, qty)
			if err != nil {
				t.Fatalf("invalid order: %v", err)
			}
			orders = append(orders, o)
		}

		prev := rapid.Float64Range(50, 150).Draw(t, "prev")
		res := Clear(Aggregate(orders, BuildGrid(orders, prev, 0.1, 0)), prev)
		if res.Price != prev || res.Volume != 0 || res.Crossed {
			t.Fatalf("Clear() = %+v, want (%v, 0)", res, prev)
		}
	})
}

func TestProperty_AllocationBalanced(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		orders := rapid.SliceOfN(orderGen(), 0, 60).Draw(t, "orders")
		res := Clear(Aggregate(orders, BuildGrid(orders, 100, 0.5, 0)), 100)
		alloc := Allocate(orders, res, 1)

		if alloc.BuyQty() != alloc.SellQty() {
			t.Fatalf("buy %s != sell %s", alloc.BuyQty(), alloc.SellQty())
		}
		if alloc.Qty != res.Qty {
			t.Fatalf("executed %s != cleared %s", alloc.Qty, res.Qty)
		}

		requested := map[string]quant.QtySats{}
		for _, o := range orders {
			requested[o.TraderID+string(o.Side)] += o.Qty
		}
		filled := map[string]quant.QtySats{}
		for _, f := range alloc.Fills {
			filled[f.TraderID+string(f.Side)] += f.Qty
		}
		for k, q := range filled {
			if q > requested[k] {
				t.Fatalf("%s filled %s of %s requested", k, q, requested[k])
			}
		}
	})
}

package trader_test

import (
	"testing"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

func TestRandomTrader_Draws(t *testing.T) {
	p := trader.DefaultParams()
	tr := trader.NewRandomTrader("trader_0000", domain.NewAccount("trader_0000", decimal.Zero, 0, false), p, 1)

	view := trader.MarketView{Day: 1, LastPrice: 100}
	active, buys := 0, 0
	for i := 0; i < 2000; i++ {
		q, ok := tr.MaybeGenerateOrder(view)
		if !ok {
			continue
		}
		active++
		if q.Side == domain.SideBuy {
			buys++
		}
		if q.LimitPrice < p.PriceTick {
			t.Fatalf("price %v below tick", q.LimitPrice)
		}
		if q.Volume < p.MinVolume || q.Volume > p.MaxDailyVolume {
			t.Fatalf("volume %v outside [%v, %v]", q.Volume, p.MinVolume, p.MaxDailyVolume)
		}
	}

	if rate := float64(active) / 2000; rate < 0.75 || rate > 0.85 {
		t.Errorf("participation rate %v, want about 0.8", rate)
	}
	if share := float64(buys) / float64(active); share < 0.45 || share > 0.55 {
		t.Errorf("buy share %v, want about 0.5", share)
	}
}

func TestRandomTrader_Deterministic(t *testing.T) {
	p := trader.DefaultParams()
	a := trader.NewRandomTrader("a", domain.NewAccount("a", decimal.Zero, 0, false), p, 99)
	b := trader.NewRandomTrader("b", domain.NewAccount("b", decimal.Zero, 0, false), p, 99)

	view := trader.MarketView{Day: 1, LastPrice: 50, Sentiment: 1}
	for i := 0; i < 100; i++ {
		qa, oka := a.MaybeGenerateOrder(view)
		qb, okb := b.MaybeGenerateOrder(view)
		if oka != okb || qa != qb {
			t.Fatalf("round %d diverged: %+v vs %+v", i, qa, qb)
		}
	}
}

func TestRandomTrader_SentimentShiftsCenter(t *testing.T) {
	p := trader.DefaultParams()
	p.ActiveProbability = 1
	tr := trader.NewRandomTrader("t", domain.NewAccount("t", decimal.Zero, 0, false), p, 5)

	sum := 0.0
	n := 0
	for i := 0; i < 3000; i++ {
		q, ok := tr.MaybeGenerateOrder(trader.MarketView{LastPrice: 100, Sentiment: 10})
		if ok {
			sum += q.LimitPrice
			n++
		}
	}
	if mean := sum / float64(n); mean < 109 || mean > 111 {
		t.Errorf("mean price %v, want about 110", mean)
	}
}

func TestWealthLimitedTrader_Caps(t *testing.T) {
	p := trader.DefaultParams()
	p.ActiveProbability = 1

	acct := domain.NewAccount("w", decimal.NewFromInt(50), 2*quant.QtyScale, true)
	tr := trader.NewWealthLimitedTrader("w", acct, p, 3)

	for i := 0; i < 500; i++ {
		q, ok := tr.MaybeGenerateOrder(trader.MarketView{LastPrice: 100})
		if !ok {
			continue
		}
		switch q.Side {
		case domain.SideBuy:
			cost := quant.PriceDecimal(q.LimitPrice).Mul(quant.FloorQtySats(q.Volume).Decimal())
			if cost.GreaterThan(acct.Cash) {
				t.Fatalf("buy of %v at %v costs %s > cash %s", q.Volume, q.LimitPrice, cost, acct.Cash)
			}
		case domain.SideSell:
			if q.Volume > 2 {
				t.Fatalf("sell of %v exceeds holdings 2", q.Volume)
			}
		}
	}
}

func TestWealthLimitedTrader_AbstainsWhenEmpty(t *testing.T) {
	p := trader.DefaultParams()
	p.ActiveProbability = 1

	acct := domain.NewAccount("broke", decimal.Zero, 0, true)
	tr := trader.NewWealthLimitedTrader("broke", acct, p, 11)
	for i := 0; i < 200; i++ {
		if q, ok := tr.MaybeGenerateOrder(trader.MarketView{LastPrice: 100}); ok {
			t.Fatalf("trader with nothing emitted %+v", q)
		}
	}
}

func TestBuildPopulation(t *testing.T) {
	spec := trader.PopulationSpec{
		Count:    25,
		Limited:  true,
		Wealth:   trader.Range{Min: 5000, Max: 15000},
		Holdings: trader.Range{Min: 0, Max: 20},
		Params:   trader.DefaultParams(),
	}
	book := domain.NewBook()
	traders := trader.BuildPopulation(spec, quant.NewRand(42), book)

	if len(traders) != 25 || book.Len() != 25 {
		t.Fatalf("expected 25 traders and accounts, got %d/%d", len(traders), book.Len())
	}
	if traders[0].ID() != "trader_0000" || traders[24].ID() != "trader_0024" {
		t.Errorf("unexpected ids %s..%s", traders[0].ID(), traders[24].ID())
	}
	for _, tr := range traders {
		a := tr.Account()
		w := a.Wealth()
		if w < 5000 || w > 15000 {
			t.Errorf("%s wealth %v outside range", tr.ID(), w)
		}
		if a.Holdings < 0 || a.Holdings > 20*quant.QtyScale {
			t.Errorf("%s holdings %s outside range", tr.ID(), a.Holdings)
		}
		if _, ok := tr.(*trader.WealthLimitedTrader); !ok {
			t.Errorf("%s is %T, want *WealthLimitedTrader", tr.ID(), tr)
		}
	}

	avg := trader.AverageWealth(traders).InexactFloat64()
	if avg < 8000 || avg > 12000 {
		t.Errorf("average wealth %v implausible", avg)
	}

	again := trader.BuildPopulation(spec, quant.NewRand(42), domain.NewBook())
	for i := range traders {
		if !traders[i].Account().Cash.Equal(again[i].Account().Cash) {
			t.Fatalf("population not reproducible at %d", i)
		}
	}
}

package trader

import (
	"fmt"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// Range is a closed interval used for uniform endowment draws.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) draw(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return quant.Uniform(rng, r.Min, r.Max)
}

// PopulationSpec describes the ordinary traders of a run.
type PopulationSpec struct {
	Count    int
	Limited  bool
	Wealth   Range
	Holdings Range
	Params   Params
}

// BuildPopulation creates traders named trader_0000.. with seeds and
// endowments drawn from master, in id order. Accounts are registered in book.
func BuildPopulation(spec PopulationSpec, master *rand.Rand, book *domain.Book) []Trader {
	traders := make([]Trader, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		id := fmt.Sprintf("trader_%04d", i)
		seed := quant.DeriveSeed(master)

		if !spec.Limited {
			acct := domain.NewAccount(id, decimal.Zero, 0, false)
			book.Add(acct)
			traders = append(traders, NewRandomTrader(id, acct, spec.Params, seed))
			continue
		}

		cash := decimal.NewFromFloat(spec.Wealth.draw(master)).Round(2)
		holdings := quant.FloorQtySats(spec.Holdings.draw(master))
		acct := domain.NewAccount(id, cash, holdings, true)
		book.Add(acct)
		traders = append(traders, NewWealthLimitedTrader(id, acct, spec.Params, seed))
	}
	return traders
}

// AverageWealth returns mean cash across accounts of the given traders.
func AverageWealth(traders []Trader) decimal.Decimal {
	if len(traders) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, t := range traders {
		total = total.Add(t.Account().Cash)
	}
	return total.Div(decimal.NewFromInt(int64(len(traders))))
}

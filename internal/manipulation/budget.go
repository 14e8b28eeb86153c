package manipulation

import (
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// Budget tracks what a manipulator can still commit within one round.
// Buys are charged at their limit price, which bounds any clearing price they fill at.
type Budget struct {
	cash   decimal.Decimal
	shares quant.QtySats
	quotes []trader.Quote
}

// NewBudget starts from the account's current balances.
func NewBudget(acct *domain.Account) *Budget {
	return &Budget{cash: acct.Cash, shares: acct.Holdings}
}

// Buy adds a buy quote sized down to what remains affordable.
func (b *Budget) Buy(price, want float64) {
	if price <= 0 || want <= 0 {
		return
	}
	q := min(quant.FloorQtySats(want), quant.MaxAffordable(b.cash, price))
	if q <= 0 {
		return
	}
	b.cash = b.cash.Sub(quant.PriceDecimal(price).Mul(q.Decimal()))
	b.quotes = append(b.quotes, trader.Quote{Side: domain.SideBuy, LimitPrice: price, Volume: q.Float64()})
}

// Sell adds a sell quote sized down to the remaining holdings.
func (b *Budget) Sell(price, want float64) {
	if price <= 0 || want <= 0 {
		return
	}
	q := min(quant.FloorQtySats(want), b.shares)
	if q <= 0 {
		return
	}
	b.shares -= q
	b.quotes = append(b.quotes, trader.Quote{Side: domain.SideSell, LimitPrice: price, Volume: q.Float64()})
}

// Pair adds a buy and a sell of equal size at the same price.
// The size is bounded by both cash and holdings so neither leg is trimmed.
func (b *Budget) Pair(price, want float64) {
	if price <= 0 || want <= 0 {
		return
	}
	q := min(quant.FloorQtySats(want), quant.MaxAffordable(b.cash, price), b.shares)
	if q <= 0 {
		return
	}
	v := q.Float64()
	b.Buy(price, v)
	b.Sell(price, v)
}

// Quotes returns the quotes accumulated so far.
func (b *Budget) Quotes() []trader.Quote {
	return b.quotes
}

// Cash returns the uncommitted cash.
func (b *Budget) Cash() decimal.Decimal {
	return b.cash
}

// Shares returns the uncommitted holdings.
func (b *Budget) Shares() quant.QtySats {
	return b.shares
}

func jitter(v, u float64) float64 {
	return v * (0.9 + 0.2*u)
}

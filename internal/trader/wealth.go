package trader

import (
	"math"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

// WealthLimitedTrader caps buys by cash and sells by holdings.
// The cap is what bends aggregate demand down as price rises.
type WealthLimitedTrader struct {
	id      string
	account *domain.Account
	params  Params
	rng     *rand.Rand
}

// NewWealthLimitedTrader creates a constrained trader. The account must be limited.
func NewWealthLimitedTrader(id string, account *domain.Account, params Params, seed uint64) *WealthLimitedTrader {
	return &WealthLimitedTrader{id: id, account: account, params: params, rng: quant.NewRand(seed)}
}

func (t *WealthLimitedTrader) ID() string               { return t.id }
func (t *WealthLimitedTrader) Account() *domain.Account { return t.account }

// MaybeGenerateOrder draws like RandomTrader, then caps the volume.
// Returns false when the feasible volume truncates to zero.
func (t *WealthLimitedTrader) MaybeGenerateOrder(view MarketView) (Quote, bool) {
	q, ok := draw(t.rng, t.params, view)
	if !ok {
		return Quote{}, false
	}

	var limit quant.QtySats
	if q.Side == domain.SideBuy {
		limit = quant.MaxAffordable(t.account.Cash, q.LimitPrice)
	} else {
		limit = t.account.Holdings
	}
	capped := min(quant.FloorQtySats(q.Volume), limit)
	if capped <= 0 {
		return Quote{}, false
	}
	q.Volume = math.Min(q.Volume, capped.Float64())
	return q, true
}

// Package trader implements the ordinary market participants.
package trader

import (
	"math"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

// MarketView is the read-only information a participant sees before a round.
type MarketView struct {
	Day       int
	LastPrice float64
	Sentiment float64
}

// Quote is an order intent. The engine validates it into a domain.Order.
type Quote struct {
	Side       domain.Side
	LimitPrice float64
	Volume     float64
}

// Trader emits at most one quote per round.
type Trader interface {
	ID() string
	Account() *domain.Account
	MaybeGenerateOrder(view MarketView) (Quote, bool)
}

// Params controls order drawing.
type Params struct {
	PriceVolatility   float64 `yaml:"price_volatility"`
	MaxDailyVolume    float64 `yaml:"max_daily_volume"`
	MinVolume         float64 `yaml:"min_volume"`
	PriceTick         float64 `yaml:"price_tick"`
	ActiveProbability float64 `yaml:"active_probability"`
	SentimentScale    float64 `yaml:"sentiment_scale"`
}

// DefaultParams mirrors the reference random-walk experiment.
func DefaultParams() Params {
	return Params{
		PriceVolatility:   2.5,
		MaxDailyVolume:    15,
		MinVolume:         0.1,
		PriceTick:         0.5,
		ActiveProbability: 0.8,
		SentimentScale:    1,
	}
}

// RandomTrader has no wealth constraint.
type RandomTrader struct {
	id      string
	account *domain.Account
	params  Params
	rng     *rand.Rand
}

// NewRandomTrader creates an unconstrained trader with its own generator.
func NewRandomTrader(id string, account *domain.Account, params Params, seed uint64) *RandomTrader {
	return &RandomTrader{id: id, account: account, params: params, rng: quant.NewRand(seed)}
}

func (t *RandomTrader) ID() string               { return t.id }
func (t *RandomTrader) Account() *domain.Account { return t.account }

// MaybeGenerateOrder draws participation, side, price and volume.
func (t *RandomTrader) MaybeGenerateOrder(view MarketView) (Quote, bool) {
	return draw(t.rng, t.params, view)
}

// draw consumes the same number of variates on every active round so that
// two traders with the same seed stay in lockstep regardless of wealth.
func draw(r *rand.Rand, p Params, view MarketView) (Quote, bool) {
	if r.Float64() >= p.ActiveProbability {
		return Quote{}, false
	}
	side := domain.SideBuy
	if r.IntN(2) == 1 {
		side = domain.SideSell
	}
	center := math.Max(view.LastPrice+p.SentimentScale*view.Sentiment, p.PriceTick)
	price := math.Max(quant.Gauss(r, center, p.PriceVolatility), p.PriceTick)
	volume := quant.Uniform(r, p.MinVolume, p.MaxDailyVolume)
	return Quote{Side: side, LimitPrice: price, Volume: volume}, true
}

package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/itrapnauskas/market-simulator/internal/manipulation"
	"github.com/itrapnauskas/market-simulator/internal/sentiment"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks construction-time configuration errors.
var ErrInvalidConfig = errors.New("invalid configuration")

// WealthMode selects the trader variant.
type WealthMode string

const (
	WealthUnlimited WealthMode = "unlimited"
	WealthLimited   WealthMode = "limited"
)

// Config holds every option a run is constructed from.
type Config struct {
	TraderCount  int        `yaml:"trader_count"`
	InitialPrice float64    `yaml:"initial_price"`
	RandomSeed   uint64     `yaml:"random_seed"`
	WealthMode   WealthMode `yaml:"wealth_mode"`

	InitialWealth   trader.Range `yaml:"initial_wealth"`
	InitialHoldings trader.Range `yaml:"initial_holdings"`

	PriceVolatility   float64 `yaml:"price_volatility"`
	MaxDailyVolume    float64 `yaml:"max_daily_volume"`
	MinVolume         float64 `yaml:"min_volume"`
	PriceTick         float64 `yaml:"price_tick"`
	ActiveProbability float64 `yaml:"active_probability"`
	SentimentScale    float64 `yaml:"sentiment_scale"`

	SentimentMode  string         `yaml:"sentiment_mode"`
	SentimentCurve sentiment.Spec `yaml:"sentiment_curve"`

	ManipulatorEnabled bool                `yaml:"manipulator_enabled"`
	Manipulator        manipulation.Params `yaml:"manipulator_params"`

	MaxGridPoints      int  `yaml:"max_grid_points"`
	ParallelGeneration bool `yaml:"parallel_generation"`
	CurveRetention     int  `yaml:"curve_retention"` // rounds of curves kept; 0 keeps all
	SnapshotEvery      int  `yaml:"snapshot_every"`
}

// DefaultConfig is the unconstrained random-walk market.
func DefaultConfig() Config {
	tp := trader.DefaultParams()
	return Config{
		TraderCount:        200,
		InitialPrice:       100,
		RandomSeed:         42,
		WealthMode:         WealthUnlimited,
		InitialWealth:      trader.Range{Min: 5000, Max: 15000},
		InitialHoldings:    trader.Range{Min: 0, Max: 20},
		PriceVolatility:    tp.PriceVolatility,
		MaxDailyVolume:     tp.MaxDailyVolume,
		MinVolume:          tp.MinVolume,
		PriceTick:          tp.PriceTick,
		ActiveProbability:  tp.ActiveProbability,
		SentimentScale:     tp.SentimentScale,
		SentimentMode:      "none",
		Manipulator:        manipulation.DefaultParams(),
		MaxGridPoints:      20000,
		ParallelGeneration: true,
	}
}

// TraderParams returns the per-trader drawing parameters.
func (c Config) TraderParams() trader.Params {
	return trader.Params{
		PriceVolatility:   c.PriceVolatility,
		MaxDailyVolume:    c.MaxDailyVolume,
		MinVolume:         c.MinVolume,
		PriceTick:         c.PriceTick,
		ActiveProbability: c.ActiveProbability,
		SentimentScale:    c.SentimentScale,
	}
}

// SentimentSource builds the configured curve.
func (c Config) SentimentSource() (sentiment.Source, error) {
	s := c.SentimentCurve
	s.Mode = c.SentimentMode
	return sentiment.FromSpec(s)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// validRange holds for finite non-negative ranges with Min <= Max.
func validRange(r trader.Range) bool {
	return safe.Finite(r.Min) && safe.Finite(r.Max) && r.Min >= 0 && r.Max >= r.Min
}

// Validate reports the first fatal configuration problem.
func (c Config) Validate() error {
	if c.TraderCount <= 0 {
		return fmt.Errorf("trader_count must be positive, got %d", c.TraderCount)
	}
	if !finitePositive(c.InitialPrice) {
		return fmt.Errorf("initial_price must be positive, got %v", c.InitialPrice)
	}
	switch c.WealthMode {
	case WealthUnlimited:
	case WealthLimited:
		if !validRange(c.InitialHoldings) {
			return fmt.Errorf("initial_holdings %+v must be a finite non-negative range", c.InitialHoldings)
		}
	default:
		return fmt.Errorf("wealth_mode %q is not one of unlimited, limited", c.WealthMode)
	}
	// The manipulator is endowed from initial_wealth in both modes.
	if (c.WealthMode == WealthLimited || c.ManipulatorEnabled) && !validRange(c.InitialWealth) {
		return fmt.Errorf("initial_wealth %+v must be a finite non-negative range", c.InitialWealth)
	}
	if !safe.Finite(c.PriceVolatility) || c.PriceVolatility < 0 {
		return fmt.Errorf("price_volatility must be >= 0, got %v", c.PriceVolatility)
	}
	if !finitePositive(c.MaxDailyVolume) || !safe.Finite(c.MinVolume) || c.MinVolume < 0 || c.MinVolume > c.MaxDailyVolume {
		return fmt.Errorf("volume range [%v, %v] is invalid", c.MinVolume, c.MaxDailyVolume)
	}
	if !finitePositive(c.PriceTick) {
		return fmt.Errorf("price_tick must be positive, got %v", c.PriceTick)
	}
	if !(c.ActiveProbability >= 0 && c.ActiveProbability <= 1) {
		return fmt.Errorf("active_probability must be in [0,1], got %v", c.ActiveProbability)
	}
	if !safe.Finite(c.SentimentScale) {
		return fmt.Errorf("sentiment_scale must be finite, got %v", c.SentimentScale)
	}
	if _, err := c.SentimentSource(); err != nil {
		return err
	}
	if c.ManipulatorEnabled {
		if err := c.Manipulator.Validate(); err != nil {
			return err
		}
	}
	if c.MaxGridPoints < 0 || c.CurveRetention < 0 || c.SnapshotEvery < 0 {
		return errors.New("max_grid_points, curve_retention and snapshot_every must be >= 0")
	}
	return nil
}

// Fingerprint returns the canonical YAML of c and its BLAKE3 digest.
func Fingerprint(c Config) (string, string, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal config: %w", err)
	}
	sum := blake3.Sum256(raw)
	return string(raw), hex.EncodeToString(sum[:]), nil
}

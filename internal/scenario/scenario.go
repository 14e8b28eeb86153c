// Package scenario runs the reference market regimes and measures whether
// each behaves as expected: a fair market is a random walk, scarce wealth
// narrows the price band, and a pump-and-dump is profitable and detectable.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/itrapnauskas/market-simulator/internal/detection"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// JarqueBera5 is the 5% critical value of chi-squared with 2 degrees of freedom.
const JarqueBera5 = 5.99

// Options sets the length of each scenario and the logger the engine uses.
type Options struct {
	FairDays     int
	BandDays     int
	PumpDumpDays int
	Logger       *slog.Logger
}

// DefaultOptions are the lengths the thresholds were chosen for.
func DefaultOptions() Options {
	return Options{FairDays: 120, BandDays: 500, PumpDumpDays: 120}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func run(ctx context.Context, cfg engine.Config, days int, logger *slog.Logger) (*engine.Simulation, []domain.MarketState, error) {
	sim, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	states, err := sim.Run(ctx, days)
	if err != nil {
		return nil, nil, err
	}
	return sim, states, nil
}

// LogReturns returns ln(p_t / p_{t-1}) with p_0 = initial.
func LogReturns(states []domain.MarketState, initial float64) []float64 {
	out := make([]float64, len(states))
	prev := initial
	for i, s := range states {
		out[i] = math.Log(s.Price / prev)
		prev = s.Price
	}
	return out
}

// JarqueBera is asymptotically chi-squared with 2 degrees of freedom under normality.
func JarqueBera(x []float64) float64 {
	s := stat.Skew(x, nil)
	k := stat.ExKurtosis(x, nil)
	return float64(len(x)) / 6 * (s*s + k*k/4)
}

// Lag1Autocorrelation of x; 0 for a constant series.
func Lag1Autocorrelation(x []float64) float64 {
	mean := stat.Mean(x, nil)
	var num, den float64
	for i, v := range x {
		den += (v - mean) * (v - mean)
		if i > 0 {
			num += (v - mean) * (x[i-1] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// FairResult holds the random-walk checks of one seed.
type FairResult struct {
	Seed          uint64
	JarqueBera    float64
	Autocorr      float64
	AutocorrBound float64
}

// Normal reports whether the returns pass Jarque-Bera at 5%.
func (r FairResult) Normal() bool { return r.JarqueBera < JarqueBera5 }

// Uncorrelated reports whether lag-1 autocorrelation is inside the 95% band.
func (r FairResult) Uncorrelated() bool { return math.Abs(r.Autocorr) < r.AutocorrBound }

// FairMarket runs the default unconstrained market.
func FairMarket(ctx context.Context, seed uint64, opts Options) (FairResult, error) {
	cfg := engine.DefaultConfig()
	cfg.RandomSeed = seed
	_, states, err := run(ctx, cfg, opts.FairDays, opts.logger())
	if err != nil {
		return FairResult{}, err
	}
	r := LogReturns(states, cfg.InitialPrice)
	return FairResult{
		Seed:          seed,
		JarqueBera:    JarqueBera(r),
		Autocorr:      Lag1Autocorrelation(r),
		AutocorrBound: 1.96 / math.Sqrt(float64(len(r))),
	}, nil
}

// BandResult compares the 2-sigma price band of paired runs.
type BandResult struct {
	Seed          uint64
	Unconstrained float64
	Limited       float64
}

// Narrower reports whether scarce wealth produced the narrower band.
func (r BandResult) Narrower() bool { return r.Limited < r.Unconstrained }

// LimitedBandConfig is the scarce-wealth market: every trader starts with
// 100 cash and one share.
func LimitedBandConfig(seed uint64) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.RandomSeed = seed
	cfg.WealthMode = engine.WealthLimited
	cfg.InitialWealth = trader.Range{Min: 100, Max: 100}
	cfg.InitialHoldings = trader.Range{Min: 1, Max: 1}
	return cfg
}

// WealthBands runs the same seed unconstrained and wealth-limited.
func WealthBands(ctx context.Context, seed uint64, opts Options) (BandResult, error) {
	cfg := engine.DefaultConfig()
	cfg.RandomSeed = seed
	_, free, err := run(ctx, cfg, opts.BandDays, opts.logger())
	if err != nil {
		return BandResult{}, err
	}
	_, limited, err := run(ctx, LimitedBandConfig(seed), opts.BandDays, opts.logger())
	if err != nil {
		return BandResult{}, err
	}
	return BandResult{
		Seed:          seed,
		Unconstrained: 4 * stat.StdDev(domain.Prices(free), nil),
		Limited:       4 * stat.StdDev(domain.Prices(limited), nil),
	}, nil
}

// PumpDumpResult holds the manipulator outcome and the mean ensemble score
// of its active rounds against the same seed without a manipulator.
type PumpDumpResult struct {
	Seed          uint64
	InitialEquity decimal.Decimal
	FinalEquity   decimal.Decimal
	Manipulated   float64 // pump and dump rounds
	Accumulating  float64
	Control       float64
}

// Profitable reports whether the manipulator ended richer than it started.
func (r PumpDumpResult) Profitable() bool { return r.FinalEquity.GreaterThan(r.InitialEquity) }

// PumpDumpConfig is a wealth-limited market with an aggressive single-cycle pump-and-dump.
func PumpDumpConfig(seed uint64) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.RandomSeed = seed
	cfg.WealthMode = engine.WealthLimited
	cfg.ManipulatorEnabled = true

	pd := &cfg.Manipulator.PumpAndDump
	pd.AccumulateRounds = 30
	pd.AccumulateVolume = 15
	pd.PumpRounds = 15
	pd.PumpPremium = 0.08
	pd.PumpVolume = 300
	pd.WashVolume = 100
	pd.DumpRounds = 15
	pd.DumpDiscount = 0.08
	pd.DumpVolume = 300
	return cfg
}

// MeanWhere averages the scores of rounds kept by keep; NaN if none are.
func MeanWhere(scores []float64, states []domain.MarketState, keep func(domain.MarketState) bool) float64 {
	var picked []float64
	for i, s := range states {
		if i < len(scores) && keep(s) {
			picked = append(picked, scores[i])
		}
	}
	if len(picked) == 0 {
		return math.NaN()
	}
	return stat.Mean(picked, nil)
}

// PumpAndDump runs PumpDumpConfig(seed) and its manipulator-free control.
func PumpAndDump(ctx context.Context, seed uint64, opts Options) (PumpDumpResult, error) {
	cfg := PumpDumpConfig(seed)
	sim, states, err := run(ctx, cfg, opts.PumpDumpDays, opts.logger())
	if err != nil {
		return PumpDumpResult{}, err
	}
	m := sim.Manipulator()
	res, err := detection.EnsembleDetection(ctx, states, nil)
	if err != nil {
		return PumpDumpResult{}, err
	}

	cfg.ManipulatorEnabled = false
	_, clean, err := run(ctx, cfg, opts.PumpDumpDays, opts.logger())
	if err != nil {
		return PumpDumpResult{}, err
	}
	ctl, err := detection.EnsembleDetection(ctx, clean, nil)
	if err != nil {
		return PumpDumpResult{}, err
	}

	return PumpDumpResult{
		Seed:          seed,
		InitialEquity: m.InitialEquity(),
		FinalEquity:   m.Equity(sim.LastPrice()),
		Manipulated: MeanWhere(res.Scores, states, func(s domain.MarketState) bool {
			return s.Phase == "pump" || s.Phase == "dump"
		}),
		Accumulating: MeanWhere(res.Scores, states, func(s domain.MarketState) bool {
			return s.Phase == "accumulate"
		}),
		Control: stat.Mean(ctl.Scores, nil),
	}, nil
}

// Report collects every scenario over a set of seeds, in seed order.
type Report struct {
	Fair     []FairResult
	Bands    []BandResult
	PumpDump []PumpDumpResult
}

// RunAll runs every scenario for every seed, at most parallel seeds at a time.
func RunAll(ctx context.Context, seeds []uint64, parallel int, opts Options) (*Report, error) {
	rep := &Report{
		Fair:     make([]FairResult, len(seeds)),
		Bands:    make([]BandResult, len(seeds)),
		PumpDump: make([]PumpDumpResult, len(seeds)),
	}
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, seed := range seeds {
		g.Go(func() (err error) {
			if rep.Fair[i], err = FairMarket(gctx, seed, opts); err != nil {
				return fmt.Errorf("fair market seed %d: %w", seed, err)
			}
			if rep.Bands[i], err = WealthBands(gctx, seed, opts); err != nil {
				return fmt.Errorf("wealth bands seed %d: %w", seed, err)
			}
			if rep.PumpDump[i], err = PumpAndDump(gctx, seed, opts); err != nil {
				return fmt.Errorf("pump and dump seed %d: %w", seed, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// FairPasses counts seeds passing each random-walk check.
func (r *Report) FairPasses() (normal, uncorrelated int) {
	for _, f := range r.Fair {
		if f.Normal() {
			normal++
		}
		if f.Uncorrelated() {
			uncorrelated++
		}
	}
	return normal, uncorrelated
}

// MeanBands averages band widths over seeds.
func (r *Report) MeanBands() (unconstrained, limited float64) {
	for _, b := range r.Bands {
		unconstrained += b.Unconstrained
		limited += b.Limited
	}
	n := float64(max(len(r.Bands), 1))
	return unconstrained / n, limited / n
}

// MeanScores averages the pump-and-dump scores over seeds.
func (r *Report) MeanScores() (manipulated, accumulating, control float64) {
	for _, p := range r.PumpDump {
		manipulated += p.Manipulated
		accumulating += p.Accumulating
		control += p.Control
	}
	n := float64(max(len(r.PumpDump), 1))
	return manipulated / n, accumulating / n, control / n
}

package detection

import (
	"math"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CoordinationConfig configures the coordinated-activity scorer.
type CoordinationConfig struct {
	Window        int     `yaml:"window"`
	PatternMemory int     `yaml:"pattern_memory"`
	PatternLength int     `yaml:"pattern_length"`
	SyncThreshold float64 `yaml:"sync_threshold"`
}

// CoordinationDetector looks for price and volume moving in lockstep,
// recurring short volume shapes and simultaneous large moves.
type CoordinationDetector struct {
	cfg CoordinationConfig
}

func NewCoordinationDetector(cfg CoordinationConfig) *CoordinationDetector {
	if cfg.Window < 3 {
		cfg.Window = 10
	}
	if cfg.PatternMemory < 1 {
		cfg.PatternMemory = 20
	}
	if cfg.PatternLength < 2 {
		cfg.PatternLength = 3
	}
	if cfg.SyncThreshold <= 0 {
		cfg.SyncThreshold = 0.7
	}
	return &CoordinationDetector{cfg: cfg}
}

func (d *CoordinationDetector) Name() string { return "coordination" }

func (d *CoordinationDetector) Detect(states []domain.MarketState) Result {
	n := len(states)
	if n < d.cfg.Window {
		return insufficient(n, "coordination", "insufficient_data", nil)
	}
	prices := domain.Prices(states)
	volumes := domain.Volumes(states)

	scores := make([]float64, n)
	flags := make([]bool, n)
	high := 0
	for i := range states {
		c := d.correlation(prices, volumes, i)
		p := d.repetition(volumes, i)
		s := synchrony(prices, volumes, i)
		scores[i] = safe.Clamp01(0.4*c + 0.3*p + 0.3*s)
		if scores[i] >= d.cfg.SyncThreshold {
			flags[i] = true
			high++
		}
	}
	return Result{
		Scores:     scores,
		IsAnomaly:  flags,
		Confidence: float64(high) / float64(n),
		Method:     "coordination",
		Metadata: map[string]any{
			"window":         d.cfg.Window,
			"sync_threshold": d.cfg.SyncThreshold,
			"n_coordinated":  high,
		},
	}
}

// correlation is |r| between price and volume changes over the trailing window.
func (d *CoordinationDetector) correlation(prices, volumes []float64, i int) float64 {
	if i < d.cfg.Window {
		return 0
	}
	lo := i - d.cfg.Window + 1
	dp := make([]float64, 0, d.cfg.Window)
	dv := make([]float64, 0, d.cfg.Window)
	for j := lo; j <= i; j++ {
		dp = append(dp, prices[j]-prices[j-1])
		dv = append(dv, volumes[j]-volumes[j-1])
	}
	return math.Abs(pearson(dp, dv))
}

// repetition is the best similarity between the shape ending at round i and
// earlier shapes that do not overlap it, starting within the pattern memory.
func (d *CoordinationDetector) repetition(volumes []float64, i int) float64 {
	l := d.cfg.PatternLength
	start := i - l + 1
	if start < l {
		return 0
	}
	current := shape(volumes[start : i+1])
	best := 0.0
	for j := max(0, start-d.cfg.PatternMemory); j+l <= start; j++ {
		past := shape(volumes[j : j+l])
		best = max(best, 1/(1+floats.Distance(current, past, 2)))
	}
	return best
}

// shape z-normalizes a window with the population deviation.
func shape(w []float64) []float64 {
	mean, variance := stat.PopMeanVariance(w, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	out := make([]float64, len(w))
	for k, v := range w {
		out[k] = (v - mean) / std
	}
	return out
}

// synchrony averages the relative price and volume moves into the round.
func synchrony(prices, volumes []float64, i int) float64 {
	if i < 2 {
		return 0
	}
	pc := math.Abs(prices[i]-prices[i-1]) / (prices[i-1] + 1e-9)
	vc := math.Abs(volumes[i]-volumes[i-1]) / (volumes[i-1] + 1e-9)
	return min(1, (pc+vc)/2)
}

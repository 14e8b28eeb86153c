package detection

import (
	"math"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"gonum.org/v1/gonum/stat/distuv"
)

// BenfordConfig configures the first-digit test on traded volumes.
type BenfordConfig struct {
	MinSamples   int     `yaml:"min_samples"`
	Significance float64 `yaml:"significance"`
}

// benfordExpected[d] is P(first digit = d) = log10(1 + 1/d).
var benfordExpected = func() [10]float64 {
	var p [10]float64
	for d := 1; d <= 9; d++ {
		p[d] = math.Log10(1 + 1/float64(d))
	}
	return p
}()

// BenfordDetector compares the leading-digit distribution of traded volume
// against the logarithmic law with a chi-squared test on 8 degrees of freedom.
type BenfordDetector struct {
	cfg BenfordConfig
}

func NewBenfordDetector(cfg BenfordConfig) *BenfordDetector {
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 30
	}
	if cfg.Significance <= 0 || cfg.Significance >= 1 {
		cfg.Significance = 0.05
	}
	return &BenfordDetector{cfg: cfg}
}

func (d *BenfordDetector) Name() string { return "benford" }

func (d *BenfordDetector) Detect(states []domain.MarketState) Result {
	n := len(states)
	digits := make([]int, n)
	var counts [10]int
	samples := 0
	for i, s := range states {
		digits[i] = leadingDigit(s.Volume)
		if digits[i] > 0 {
			counts[digits[i]]++
			samples++
		}
	}
	if samples < d.cfg.MinSamples {
		return insufficient(n, "benford", "insufficient_samples", map[string]any{"n_samples": samples})
	}

	var observed [10]float64
	chi2 := 0.0
	freq := make(map[int]map[string]float64, 9)
	for k := 1; k <= 9; k++ {
		observed[k] = float64(counts[k]) / float64(samples)
		exp := benfordExpected[k] * float64(samples)
		diff := float64(counts[k]) - exp
		chi2 += diff * diff / exp
		freq[k] = map[string]float64{"observed": observed[k], "expected": benfordExpected[k]}
	}
	pValue := distuv.ChiSquared{K: 8}.Survival(chi2)
	violation := pValue < d.cfg.Significance

	scores := make([]float64, n)
	flags := make([]bool, n)
	for i, dg := range digits {
		if dg > 0 {
			exp := benfordExpected[dg]
			scores[i] = safe.Clamp01(math.Abs(observed[dg]-exp) / exp)
		}
		flags[i] = violation
	}

	confidence := 0.0
	if violation {
		confidence = min(1, chi2/20)
	}
	return Result{
		Scores:     scores,
		IsAnomaly:  flags,
		Confidence: confidence,
		Method:     "benford",
		Metadata: map[string]any{
			"chi_squared":        chi2,
			"p_value":            pValue,
			"is_violation":       violation,
			"n_samples":          samples,
			"frequency_analysis": freq,
		},
	}
}

// leadingDigit returns 1..9 for positive finite v and 0 otherwise.
func leadingDigit(v float64) int {
	if !(v > 0) || math.IsInf(v, 0) {
		return 0
	}
	for v >= 10 {
		v /= 10
	}
	for v < 1 {
		v *= 10
	}
	return int(v)
}

package detection

import (
	"fmt"
	"math"
	"sort"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"gonum.org/v1/gonum/stat"
)

func sortDesc(v []float64) {
	sort.Sort(sort.Reverse(sort.Float64Slice(v)))
}

// RollingZScore returns, for each point, its z-score against the trailing
// window ending at that point. Windows with one point or zero spread give 0.
func RollingZScore(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	for i := range values {
		w := values[max(0, i-window+1) : i+1]
		if len(w) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(w, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		out[i] = (values[i] - mean) / std
	}
	return out
}

// BandDistance is the distance of each value outside [lower, upper], 0 inside.
func BandDistance(series, lower, upper []float64) ([]float64, error) {
	if len(series) != len(lower) || len(series) != len(upper) {
		return nil, fmt.Errorf("band length mismatch: series %d, lower %d, upper %d", len(series), len(lower), len(upper))
	}
	out := make([]float64, len(series))
	for i, v := range series {
		switch {
		case v < lower[i]:
			out[i] = lower[i] - v
		case v > upper[i]:
			out[i] = v - upper[i]
		}
	}
	return out, nil
}

// PriceVolumeAnomaly is |z_price| + |z_volume| over a trailing window.
// It is unbounded; use a Detector for [0,1] scores.
func PriceVolumeAnomaly(states []domain.MarketState, window int) []float64 {
	pz := RollingZScore(domain.Prices(states), window)
	vz := RollingZScore(domain.Volumes(states), window)
	out := make([]float64, len(states))
	for i := range out {
		out[i] = math.Abs(pz[i]) + math.Abs(vz[i])
	}
	return out
}

// CurveImbalanceScore is the mean absolute gap between the demand and supply
// curves relative to mean supply. Empty curves score 0.
func CurveImbalanceScore(c domain.OrderCurves) float64 {
	n := min(len(c.BuyCurve), len(c.SellCurve))
	if n == 0 {
		return 0
	}
	diff := 0.0
	for i := 0; i < n; i++ {
		diff += math.Abs(c.BuyCurve[i] - c.SellCurve[i])
	}
	return diff / float64(n) / (stat.Mean(c.SellCurve, nil) + 1e-6)
}

// Attach returns a copy of states with ManipulationScore set from res.
// States beyond len(res.Scores) are copied unchanged.
func Attach(states []domain.MarketState, res Result) []domain.MarketState {
	out := make([]domain.MarketState, len(states))
	copy(out, states)
	for i := range out {
		if i < len(res.Scores) {
			out[i].ManipulationScore = domain.Float64Ptr(res.Scores[i])
		}
	}
	return out
}

// standardize returns column-standardized copies of rows. Constant columns become 0.
func standardize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	d := len(rows[0])
	col := make([]float64, len(rows))
	out := make([][]float64, len(rows))
	for i := range out {
		out[i] = make([]float64, d)
	}
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i, r := range rows {
			out[i][j] = (r[j] - mean) / std
		}
	}
	return out
}

// pearson returns 0 instead of NaN for degenerate inputs.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if !safe.Finite(r) {
		return 0
	}
	return r
}

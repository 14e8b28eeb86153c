// Package detection scores a completed MarketState history for manipulation.
//
// Every detector is a pure function of its input and configured seed, and
// every score lies in [0,1] with higher meaning more anomalous. Too little
// data is not an error: the result is marked insufficient with zero confidence.
package detection

import (
	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// Result is the output of one detector or of the ensemble.
type Result struct {
	Scores       []float64      `json:"scores"`
	IsAnomaly    []bool         `json:"is_anomaly"`
	Confidence   float64        `json:"confidence"`
	Method       string         `json:"method"`
	Insufficient bool           `json:"insufficient_data"`
	Metadata     map[string]any `json:"metadata"`
}

// Detector scores every state of a history.
type Detector interface {
	Name() string
	Detect(states []domain.MarketState) Result
}

func insufficient(n int, method, reason string, meta map[string]any) Result {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["error"] = reason
	return Result{
		Scores:       make([]float64, n),
		IsAnomaly:    make([]bool, n),
		Method:       method,
		Insufficient: true,
		Metadata:     meta,
	}
}

// flagTop marks scores at or above the score ranked at frac of the sorted
// list. Zero scores are never flagged.
func flagTop(scores []float64, frac float64) ([]bool, float64) {
	flags := make([]bool, len(scores))
	if len(scores) == 0 {
		return flags, 0
	}
	sorted := append([]float64(nil), scores...)
	sortDesc(sorted)
	k := int(float64(len(sorted)) * frac)
	if k >= len(sorted) {
		k = len(sorted) - 1
	}
	threshold := sorted[k]
	for i, s := range scores {
		flags[i] = s > 0 && s >= threshold
	}
	return flags, threshold
}

// meanFlagged is the mean score of flagged rounds, 0 when none are flagged.
func meanFlagged(scores []float64, flags []bool) float64 {
	sum, n := 0.0, 0
	for i, f := range flags {
		if f {
			sum += scores[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

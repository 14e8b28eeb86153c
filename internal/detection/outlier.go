package detection

import (
	"math"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Outlier methods.
const (
	MethodIsolationForest = "isolation_forest"
	MethodDistance        = "distance"
)

// OutlierConfig configures the multivariate outlier scorer.
type OutlierConfig struct {
	Method           string  `yaml:"method"`
	Contamination    float64 `yaml:"contamination"`
	Trees            int     `yaml:"trees"`
	SampleSize       int     `yaml:"sample_size"`
	VolatilityWindow int     `yaml:"volatility_window"`
}

// OutlierDetector scores rounds by how far their (return, volume, imbalance,
// volatility) vector sits from the rest of the history.
type OutlierDetector struct {
	cfg  OutlierConfig
	seed uint64
}

// NewOutlierDetector clamps contamination to [0, 0.5].
func NewOutlierDetector(cfg OutlierConfig, seed uint64) *OutlierDetector {
	cfg.Contamination = min(max(cfg.Contamination, 0), 0.5)
	if cfg.Trees < 1 {
		cfg.Trees = 100
	}
	if cfg.SampleSize < 2 {
		cfg.SampleSize = 256
	}
	if cfg.VolatilityWindow < 2 {
		cfg.VolatilityWindow = 5
	}
	if cfg.Method == "" {
		cfg.Method = MethodIsolationForest
	}
	return &OutlierDetector{cfg: cfg, seed: seed}
}

func (d *OutlierDetector) Name() string { return "outlier" }

func (d *OutlierDetector) Detect(states []domain.MarketState) Result {
	n := len(states)
	if n < 2 {
		return insufficient(n, d.cfg.Method, "insufficient_data", nil)
	}

	x := standardize(outlierFeatures(states, d.cfg.VolatilityWindow))
	var scores []float64
	if d.cfg.Method == MethodDistance {
		scores = distanceScores(x)
	} else {
		scores = isolationScores(x, d.cfg.Trees, d.cfg.SampleSize, quant.NewRand(d.seed))
	}
	for i := range scores {
		scores[i] = safe.Clamp01(scores[i])
	}

	flags, threshold := flagTop(scores, d.cfg.Contamination)
	return Result{
		Scores:     scores,
		IsAnomaly:  flags,
		Confidence: meanFlagged(scores, flags),
		Method:     d.cfg.Method,
		Metadata: map[string]any{
			"contamination": d.cfg.Contamination,
			"threshold":     threshold,
			"n_anomalies":   countTrue(flags),
			"features":      []string{"price_change", "volume", "imbalance", "volatility"},
		},
	}
}

func outlierFeatures(states []domain.MarketState, window int) [][]float64 {
	returns := make([]float64, len(states))
	for i := 1; i < len(states); i++ {
		if prev := states[i-1].Price; prev != 0 {
			returns[i] = (states[i].Price - prev) / prev
		}
	}
	rows := make([][]float64, len(states))
	for i, s := range states {
		vol := math.Abs(returns[i])
		if w := returns[max(1, i-window+1) : i+1]; len(w) >= 2 {
			vol = stat.StdDev(w, nil)
		}
		rows[i] = []float64{returns[i], s.Volume, s.Imbalance, vol}
	}
	return rows
}

// distanceScores is each row's norm divided by the largest norm.
func distanceScores(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = floats.Norm(row, 2)
	}
	if m := floats.Max(out); m > 0 {
		floats.Scale(1/m, out)
	}
	return out
}

type isoNode struct {
	feature     int // -1 for a leaf
	split       float64
	size        int
	left, right *isoNode
}

// isolationScores fits a forest on x and returns the anomaly score of every
// row, min-max rescaled to [0,1].
func isolationScores(x [][]float64, trees, sampleSize int, r *rand.Rand) []float64 {
	n := len(x)
	psi := min(sampleSize, n)
	limit := int(math.Ceil(math.Log2(float64(psi))))

	forest := make([]*isoNode, trees)
	for t := range forest {
		idx := r.Perm(n)[:psi]
		forest[t] = growTree(x, idx, 0, limit, r)
	}

	raw := make([]float64, n)
	norm := avgPathLength(psi)
	for i, row := range x {
		sum := 0.0
		for _, root := range forest {
			sum += pathLength(row, root, 0)
		}
		mean := sum / float64(trees)
		if norm > 0 {
			raw[i] = math.Pow(2, -mean/norm)
		}
	}

	lo, hi := floats.Min(raw), floats.Max(raw)
	out := make([]float64, n)
	if hi > lo {
		for i, v := range raw {
			out[i] = (v - lo) / (hi - lo)
		}
	}
	return out
}

func growTree(x [][]float64, idx []int, depth, limit int, r *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{feature: -1, size: len(idx)}
	}
	d := len(x[idx[0]])
	lo := make([]float64, d)
	hi := make([]float64, d)
	copy(lo, x[idx[0]])
	copy(hi, x[idx[0]])
	for _, i := range idx[1:] {
		for f, v := range x[i] {
			lo[f] = min(lo[f], v)
			hi[f] = max(hi[f], v)
		}
	}
	var spread []int
	for f := 0; f < d; f++ {
		if hi[f] > lo[f] {
			spread = append(spread, f)
		}
	}
	if len(spread) == 0 {
		return &isoNode{feature: -1, size: len(idx)}
	}

	f := spread[r.IntN(len(spread))]
	split := lo[f] + r.Float64()*(hi[f]-lo[f])
	var left, right []int
	for _, i := range idx {
		if x[i][f] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		feature: f,
		split:   split,
		size:    len(idx),
		left:    growTree(x, left, depth+1, limit, r),
		right:   growTree(x, right, depth+1, limit, r),
	}
}

func pathLength(row []float64, n *isoNode, depth int) float64 {
	for n.feature >= 0 {
		if row[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + avgPathLength(n.size)
}

// avgPathLength is the expected path length of an unsuccessful BST search over n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+0.5772156649) - 2*m/float64(n)
}

package detection

import (
	"math"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"gonum.org/v1/gonum/floats"
)

// VolumeConfig configures the volume profile scorer.
type VolumeConfig struct {
	Window         int     `yaml:"window"`
	SpikeThreshold float64 `yaml:"spike_threshold"`
	Clusters       int     `yaml:"clusters"`
	MaxIter        int     `yaml:"max_iter"`
}

// VolumeProfileDetector combines rolling volume spikes, volume acceleration
// and regime changes found by clustering the volume profile.
type VolumeProfileDetector struct {
	cfg  VolumeConfig
	seed uint64
}

func NewVolumeProfileDetector(cfg VolumeConfig, seed uint64) *VolumeProfileDetector {
	if cfg.Window < 2 {
		cfg.Window = 5
	}
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = 2.5
	}
	if cfg.Clusters < 2 {
		cfg.Clusters = 3
	}
	if cfg.MaxIter < 1 {
		cfg.MaxIter = 50
	}
	return &VolumeProfileDetector{cfg: cfg, seed: seed}
}

func (d *VolumeProfileDetector) Name() string { return "volume_profile" }

func (d *VolumeProfileDetector) Detect(states []domain.MarketState) Result {
	n := len(states)
	if n < d.cfg.Window {
		return insufficient(n, "volume_profile", "insufficient_data", nil)
	}
	volumes := domain.Volumes(states)

	z := RollingZScore(volumes, d.cfg.Window)
	spike := make([]float64, n)
	for i, v := range z {
		spike[i] = min(1, math.Abs(v)/d.cfg.SpikeThreshold)
	}

	velocity := make([]float64, n)
	accel := make([]float64, n)
	for i := 1; i < n; i++ {
		velocity[i] = (volumes[i] - volumes[i-1]) / (volumes[i-1] + 1e-9)
		accel[i] = math.Abs(velocity[i] - velocity[i-1])
	}
	if m := floats.Max(accel); m > 0 {
		floats.Scale(1/m, accel)
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{volumes[i], velocity[i]}
	}
	labels := kmeans(standardize(rows), d.cfg.Clusters, d.cfg.MaxIter, quant.NewRand(d.seed))
	transitions := 0
	scores := make([]float64, n)
	for i := range scores {
		trans := 0.0
		if i > 0 && labels[i] != labels[i-1] {
			trans = 1
			transitions++
		}
		scores[i] = safe.Clamp01(0.5*spike[i] + 0.3*accel[i] + 0.2*trans)
	}

	flags, threshold := flagTop(scores, 0.1)
	spikes := 0
	for _, s := range spike {
		if s > 0.8 {
			spikes++
		}
	}
	return Result{
		Scores:     scores,
		IsAnomaly:  flags,
		Confidence: meanFlagged(scores, flags),
		Method:     "volume_profile",
		Metadata: map[string]any{
			"n_spikes":      spikes,
			"n_transitions": transitions,
			"threshold":     threshold,
		},
	}
}

// kmeans assigns each row to one of k clusters, seeded with k-means++.
// Fewer rows than k puts everything in cluster 0.
func kmeans(x [][]float64, k, maxIter int, r *rand.Rand) []int {
	n := len(x)
	labels := make([]int, n)
	if n < k {
		return labels
	}

	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), x[r.IntN(n)]...))
	dist := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for i, row := range x {
			dist[i] = math.Inf(1)
			for _, c := range centers {
				dist[i] = min(dist[i], floats.Distance(row, c, 2))
			}
			dist[i] *= dist[i]
			total += dist[i]
		}
		next := len(centers) % n
		if total > 0 {
			target := r.Float64() * total
			for i, w := range dist {
				target -= w
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centers = append(centers, append([]float64(nil), x[next]...))
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range x {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if dd := floats.Distance(row, center, 2); dd < bestDist {
					best, bestDist = c, dd
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(x[0]))
		}
		for i, row := range x {
			counts[labels[i]]++
			floats.Add(sums[labels[i]], row)
		}
		for c := range centers {
			if counts[c] > 0 {
				floats.ScaleTo(centers[c], 1/float64(counts[c]), sums[c])
			}
		}
	}
	return labels
}

package detection

import (
	"context"
	"fmt"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"golang.org/x/sync/errgroup"
)

type weighted struct {
	det    Detector
	weight float64
}

// Ensemble runs several detectors concurrently and combines their scores.
type Ensemble struct {
	members   []weighted
	voteScore float64
}

// NewEnsemble builds the scorers with a non-zero weight and normalizes the weights to 1.
func NewEnsemble(cfg Config) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	all := []weighted{
		{NewOutlierDetector(cfg.Outlier, cfg.Seed), cfg.Weights.Outlier},
		{NewBenfordDetector(cfg.Benford), cfg.Weights.Benford},
		{NewVolumeProfileDetector(cfg.Volume, cfg.Seed), cfg.Weights.VolumeProfile},
		{NewCoordinationDetector(cfg.Coordination), cfg.Weights.Coordination},
	}
	total := 0.0
	for _, m := range all {
		total += m.weight
	}
	e := &Ensemble{voteScore: cfg.VoteScore}
	for _, m := range all {
		if m.weight > 0 {
			m.weight /= total
			e.members = append(e.members, m)
		}
	}
	return e, nil
}

// EnsembleDetection scores states with the default scorers. A non-nil
// weights overrides the default weights.
func EnsembleDetection(ctx context.Context, states []domain.MarketState, weights *Weights) (Result, error) {
	cfg := DefaultConfig()
	if weights != nil {
		cfg.Weights = *weights
	}
	e, err := NewEnsemble(cfg)
	if err != nil {
		return Result{}, err
	}
	return e.DetectContext(ctx, states)
}

func (e *Ensemble) Name() string { return "ensemble" }

// Detect is DetectContext without cancellation.
func (e *Ensemble) Detect(states []domain.MarketState) Result {
	res, err := e.DetectContext(context.Background(), states)
	if err != nil {
		// Only cancellation can fail, and Background is never cancelled.
		panic(fmt.Sprintf("ENSEMBLE_FAILED: %v", err))
	}
	return res
}

// DetectContext runs every member concurrently and combines the results.
func (e *Ensemble) DetectContext(ctx context.Context, states []domain.MarketState) (Result, error) {
	n := len(states)
	results := make([]Result, len(e.members))

	g, ctx := errgroup.WithContext(ctx)
	for i, m := range e.members {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = m.det.Detect(states)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("ensemble detection: %w", err)
	}

	scores := make([]float64, n)
	flags := make([]bool, n)
	names := make([]string, len(e.members))
	weights := make(map[string]float64, len(e.members))
	confidences := make(map[string]float64, len(e.members))
	individual := make(map[string]any, len(e.members))
	var lacking []string
	sufficient := 0
	for k, m := range e.members {
		name := m.det.Name()
		names[k] = name
		weights[name] = m.weight
		confidences[name] = results[k].Confidence
		individual[name] = results[k].Metadata
		if results[k].Insufficient {
			lacking = append(lacking, name)
		} else {
			sufficient++
		}
	}

	agreement := 0.0
	for i := 0; i < n; i++ {
		votes, above := 0, 0
		for k, m := range e.members {
			r := results[k]
			scores[i] += m.weight * r.Scores[i]
			if r.IsAnomaly[i] {
				votes++
			}
			if !r.Insufficient && r.Scores[i] >= e.voteScore {
				above++
			}
		}
		scores[i] = safe.Clamp01(scores[i])
		flags[i] = 2*votes > len(e.members)
		if sufficient > 0 {
			agreement += float64(max(above, sufficient-above)) / float64(sufficient)
		}
	}

	confidence := 0.0
	if n > 0 && len(e.members) > 0 {
		confidence = agreement / float64(n) * float64(sufficient) / float64(len(e.members))
	}
	return Result{
		Scores:       scores,
		IsAnomaly:    flags,
		Confidence:   safe.Clamp01(confidence),
		Method:       "ensemble",
		Insufficient: sufficient == 0,
		Metadata: map[string]any{
			"methods":                names,
			"weights":                weights,
			"individual_confidences": confidences,
			"individual_metadata":    individual,
			"insufficient_data":      lacking,
		},
	}, nil
}

// Package backtest reads completed runs back out of the journal, scores them
// with the detection ensemble and re-simulates them to check determinism.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/itrapnauskas/market-simulator/internal/detection"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"github.com/itrapnauskas/market-simulator/internal/event"
	"github.com/itrapnauskas/market-simulator/internal/storage"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// ErrDiverged is returned by Verify when a re-simulation differs from the journal.
var ErrDiverged = errors.New("replay diverged from journal")

// PhaseNone labels rounds without an active manipulator.
const PhaseNone = "none"

// PhaseScore aggregates ensemble scores over the rounds of one manipulator phase.
type PhaseScore struct {
	Phase     string  `json:"phase"`
	Rounds    int     `json:"rounds"`
	MeanScore float64 `json:"mean_score"`
	Flagged   int     `json:"flagged"`
}

// Report is the outcome of replaying one run through detection.
type Report struct {
	Run     storage.RunInfo           `json:"run"`
	States  []domain.MarketState      `json:"states"`
	Phases  []event.PhaseChangedEvent `json:"phase_changes"`
	Result  detection.Result          `json:"result"`
	ByPhase []PhaseScore              `json:"by_phase"`
}

// Replayer reads runs from a RunStore.
type Replayer struct {
	store  *storage.RunStore
	owned  bool
	logger *slog.Logger
}

// NewReplayer opens the journal at dbPath. Close releases it.
func NewReplayer(dbPath string) (*Replayer, error) {
	store, err := storage.NewRunStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{store: store, owned: true, logger: slog.Default()}, nil
}

// NewReplayerFromStore reads from an already open store, which stays open on Close.
func NewReplayerFromStore(store *storage.RunStore, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{store: store, logger: logger}
}

// Close closes the store if the replayer opened it.
func (r *Replayer) Close() error {
	if r.owned {
		return r.store.Close()
	}
	return nil
}

// Runs lists the journaled runs, newest first.
func (r *Replayer) Runs(ctx context.Context) ([]storage.RunInfo, error) {
	return r.store.ListRuns(ctx)
}

// Latest returns the id of the most recently started run.
func (r *Replayer) Latest(ctx context.Context) (string, error) {
	runs, err := r.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: journal is empty", storage.ErrRunNotFound)
	}
	return runs[0].ID, nil
}

// Replay loads runID and scores it with an ensemble built from cfg.
// The returned states carry the ensemble score of each round.
func (r *Replayer) Replay(ctx context.Context, runID string, cfg detection.Config) (*Report, error) {
	info, err := r.store.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	states, err := r.store.LoadStates(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	phases, err := r.store.LoadPhaseChanges(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phase changes: %w", err)
	}

	ens, err := detection.NewEnsemble(cfg)
	if err != nil {
		return nil, err
	}
	res, err := ens.DetectContext(ctx, states)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Run:     info,
		States:  detection.Attach(states, res),
		Phases:  phases,
		Result:  res,
		ByPhase: SummarizeByPhase(states, res),
	}
	r.logger.Info("Run replayed",
		slog.String("run_id", runID),
		slog.Int("rounds", len(states)),
		slog.Int("phase_changes", len(phases)),
		slog.Float64("confidence", res.Confidence))
	return rep, nil
}

// SummarizeByPhase groups scores by the manipulator phase active in each round.
// Phases appear in order of first occurrence.
func SummarizeByPhase(states []domain.MarketState, res detection.Result) []PhaseScore {
	type acc struct {
		scores  []float64
		flagged int
	}
	groups := map[string]*acc{}
	var order []string
	for i, s := range states {
		if i >= len(res.Scores) {
			break
		}
		p := s.Phase
		if p == "" {
			p = PhaseNone
		}
		g, ok := groups[p]
		if !ok {
			g = &acc{}
			groups[p] = g
			order = append(order, p)
		}
		g.scores = append(g.scores, res.Scores[i])
		if i < len(res.IsAnomaly) && res.IsAnomaly[i] {
			g.flagged++
		}
	}

	out := make([]PhaseScore, 0, len(order))
	for _, p := range order {
		g := groups[p]
		out = append(out, PhaseScore{
			Phase:     p,
			Rounds:    len(g.scores),
			MeanScore: stat.Mean(g.scores, nil),
			Flagged:   g.flagged,
		})
	}
	return out
}

// Config recovers the simulation config a run was started with.
func (r *Replayer) Config(ctx context.Context, runID string) (engine.Config, error) {
	started, err := r.store.LoadRunStarted(ctx, runID)
	if err != nil {
		return engine.Config{}, err
	}
	var cfg engine.Config
	if err := yaml.Unmarshal([]byte(started.Config), &cfg); err != nil {
		return engine.Config{}, fmt.Errorf("failed to parse stored config of %s: %w", runID, err)
	}
	_, fp, err := engine.Fingerprint(cfg)
	if err != nil {
		return engine.Config{}, err
	}
	if fp != started.Fingerprint {
		return engine.Config{}, fmt.Errorf("stored config of %s does not match fingerprint %s", runID, started.Fingerprint)
	}
	return cfg, nil
}

// Verify re-runs runID from its stored config and seed and compares every
// round with the journal. A mismatch wraps ErrDiverged and names the first day.
func (r *Replayer) Verify(ctx context.Context, runID string) error {
	cfg, err := r.Config(ctx, runID)
	if err != nil {
		return err
	}
	journaled, err := r.store.LoadStates(ctx, runID)
	if err != nil {
		return err
	}

	sim, err := engine.New(cfg, engine.WithLogger(r.logger), engine.WithRunID(runID+"-verify"))
	if err != nil {
		return err
	}
	replayed, err := sim.Run(ctx, len(journaled))
	if err != nil {
		return err
	}

	for i := range journaled {
		a, b := journaled[i], replayed[i]
		if a.Day != b.Day || a.Price != b.Price || a.Volume != b.Volume || a.Phase != b.Phase {
			return fmt.Errorf("%w: day %d journal=(%v, %v, %q) replay=(%v, %v, %q)",
				ErrDiverged, a.Day, a.Price, a.Volume, a.Phase, b.Price, b.Volume, b.Phase)
		}
	}
	r.logger.Info("Run verified", slog.String("run_id", runID), slog.Int("rounds", len(journaled)))
	return nil
}

func detectionKey(runID string) string {
	return "detection:" + runID
}

// SaveDetection stores a detection result next to the run in the metadata table.
func SaveDetection(ctx context.Context, store *storage.RunStore, runID string, res detection.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal detection result: %w", err)
	}
	return store.UpsertMetadata(ctx, detectionKey(runID), string(raw), time.Now().UnixMicro())
}

// LoadDetection returns the stored detection result of runID, or nil if there is none.
func LoadDetection(ctx context.Context, store *storage.RunStore, runID string) (*detection.Result, error) {
	raw, err := store.GetMetadata(ctx, detectionKey(runID))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var res detection.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("failed to parse detection result of %s: %w", runID, err)
	}
	return &res, nil
}

// TopRounds returns the n highest-scoring rounds of a report, highest first.
func (rep *Report) TopRounds(n int) []domain.MarketState {
	out := append([]domain.MarketState(nil), rep.States...)
	sort.SliceStable(out, func(i, j int) bool {
		return score(out[i]) > score(out[j])
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

func score(s domain.MarketState) float64 {
	if s.ManipulationScore == nil {
		return 0
	}
	return *s.ManipulationScore
}

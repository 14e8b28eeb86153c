package backtest

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/itrapnauskas/market-simulator/internal/detection"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"github.com/itrapnauskas/market-simulator/internal/storage"
)

func manipulatedConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.TraderCount = 40
	cfg.WealthMode = engine.WealthLimited
	cfg.ManipulatorEnabled = true
	cfg.Manipulator.PumpAndDump.AccumulateRounds = 10
	cfg.Manipulator.PumpAndDump.PumpRounds = 5
	cfg.Manipulator.PumpAndDump.DumpRounds = 5
	return cfg
}

// journalRun simulates cfg into a fresh journal and returns the store and states.
func journalRun(t *testing.T, cfg engine.Config, runID string, days int) (*storage.RunStore, []domain.MarketState) {
	t.Helper()
	store, err := storage.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	sim, err := engine.New(cfg, engine.WithStore(store), engine.WithRunID(runID))
	if err != nil {
		t.Fatal(err)
	}
	states, err := sim.Run(context.Background(), days)
	if err != nil {
		t.Fatal(err)
	}
	return store, states
}

func TestReplayer_Replay(t *testing.T) {
	store, states := journalRun(t, manipulatedConfig(), "run-replay", 40)
	r := NewReplayerFromStore(store, nil)
	ctx := context.Background()

	rep, err := r.Replay(ctx, "run-replay", detection.DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rep.Run.ID != "run-replay" || rep.Run.Days != 40 || len(rep.States) != len(states) {
		t.Fatalf("unexpected report header %+v with %d states", rep.Run, len(rep.States))
	}
	for i, s := range rep.States {
		if s.ManipulationScore == nil || *s.ManipulationScore != rep.Result.Scores[i] {
			t.Fatalf("round %d score not attached", i+1)
		}
		if states[i].ManipulationScore != nil {
			t.Fatal("journal states were mutated")
		}
	}
	if len(rep.Phases) < 2 {
		t.Errorf("expected phase changes, got %d", len(rep.Phases))
	}

	total := 0
	seen := map[string]bool{}
	for _, p := range rep.ByPhase {
		total += p.Rounds
		seen[p.Phase] = true
		if p.MeanScore < 0 || p.MeanScore > 1 {
			t.Errorf("phase %s mean %v outside [0,1]", p.Phase, p.MeanScore)
		}
	}
	if total != 40 || !seen["accumulate"] || !seen["pump"] || !seen["dump"] {
		t.Errorf("phase summary %+v", rep.ByPhase)
	}

	top := rep.TopRounds(3)
	if len(top) != 3 || *top[0].ManipulationScore < *top[2].ManipulationScore {
		t.Errorf("top rounds not ordered: %+v", top)
	}
}

func TestReplayer_UnknownRun(t *testing.T) {
	store, _ := journalRun(t, manipulatedConfig(), "run-a", 5)
	r := NewReplayerFromStore(store, nil)
	if _, err := r.Replay(context.Background(), "missing", detection.DefaultConfig()); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestReplayer_VerifyReproducesRun(t *testing.T) {
	store, _ := journalRun(t, manipulatedConfig(), "run-verify", 30)
	r := NewReplayerFromStore(store, nil)
	ctx := context.Background()

	cfg, err := r.Config(ctx, "run-verify")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.TraderCount != 40 || !cfg.ManipulatorEnabled {
		t.Errorf("stored config not recovered: %+v", cfg)
	}
	if err := r.Verify(ctx, "run-verify"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestReplayer_LatestAndRuns(t *testing.T) {
	store, _ := journalRun(t, engine.DefaultConfig(), "run-1", 3)
	r := NewReplayerFromStore(store, nil)
	ctx := context.Background()

	id, err := r.Latest(ctx)
	if err != nil || id != "run-1" {
		t.Fatalf("Latest = %q, %v", id, err)
	}
	runs, err := r.Runs(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs = %+v, %v", runs, err)
	}
}

func TestReplayer_LatestEmpty(t *testing.T) {
	r, err := NewReplayer(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.Latest(context.Background()); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestSaveAndLoadDetection(t *testing.T) {
	store, err := storage.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	got, err := LoadDetection(ctx, store, "run-x")
	if err != nil || got != nil {
		t.Fatalf("expected no stored result, got %+v, %v", got, err)
	}

	res := detection.Result{
		Scores:     []float64{0.1, 0.9},
		IsAnomaly:  []bool{false, true},
		Confidence: 0.5,
		Method:     "ensemble",
		Metadata:   map[string]any{"methods": []string{"outlier"}},
	}
	if err := SaveDetection(ctx, store, "run-x", res); err != nil {
		t.Fatal(err)
	}
	got, err = LoadDetection(ctx, store, "run-x")
	if err != nil || got == nil {
		t.Fatalf("LoadDetection: %+v, %v", got, err)
	}
	if got.Confidence != 0.5 || got.Scores[1] != 0.9 || !got.IsAnomaly[1] || got.Method != "ensemble" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestSummarizeByPhase(t *testing.T) {
	states := []domain.MarketState{
		{Day: 1}, {Day: 2, Phase: "pump"}, {Day: 3, Phase: "pump"}, {Day: 4},
	}
	res := detection.Result{
		Scores:    []float64{0.2, 0.8, 0.6, 0.4},
		IsAnomaly: []bool{false, true, false, false},
	}
	got := SummarizeByPhase(states, res)
	if len(got) != 2 || got[0].Phase != PhaseNone || got[1].Phase != "pump" {
		t.Fatalf("unexpected groups %+v", got)
	}
	if got[0].Rounds != 2 || math.Abs(got[0].MeanScore-0.3) > 1e-12 {
		t.Errorf("none group %+v", got[0])
	}
	if got[1].Rounds != 2 || got[1].Flagged != 1 || math.Abs(got[1].MeanScore-0.7) > 1e-12 {
		t.Errorf("pump group %+v", got[1])
	}
}

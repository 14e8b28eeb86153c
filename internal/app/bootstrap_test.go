package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/itrapnauskas/market-simulator/backtest"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"github.com/itrapnauskas/market-simulator/internal/infra"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	t.Setenv(infra.WorkspaceEnv, t.TempDir())
	cfg := infra.DefaultConfig()
	cfg.Simulation.TraderCount = 30
	cfg.Simulation.SnapshotEvery = 10
	cfg.Run.Days = 40
	cfg.Storage.KeepSnapshots = 2
	return cfg
}

func TestBootstrap_ExecuteJournalsRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Detect = true
	cfg.Simulation.WealthMode = engine.WealthLimited
	cfg.Simulation.ManipulatorEnabled = true

	var logs bytes.Buffer
	b := NewBootstrap(cfg)
	if err := b.Initialize(&logs); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	out, err := b.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.States) != 40 || out.Summary.Days != 40 {
		t.Fatalf("got %d states, summary %+v", len(out.States), out.Summary)
	}
	if out.Detection == nil || !out.Summary.Detected || out.States[0].ManipulationScore == nil {
		t.Fatal("detection did not run")
	}
	if out.Summary.ManipulatorPhase == "" || out.Summary.ManipulatorPnL == "" {
		t.Errorf("manipulator summary missing: %+v", out.Summary)
	}

	info, err := b.Store.Run(ctx, out.RunID)
	if err != nil || info.Days != 40 {
		t.Fatalf("journal run %+v, %v", info, err)
	}
	stored, err := backtest.LoadDetection(ctx, b.Store, out.RunID)
	if err != nil || stored == nil || len(stored.Scores) != 40 {
		t.Fatalf("stored detection %+v, %v", stored, err)
	}

	snaps, err := filepath.Glob(filepath.Join(cfg.Storage.SnapshotDir, "snapshot_*.json"))
	if err != nil || len(snaps) != 2 {
		t.Errorf("expected 2 kept snapshots, got %v (%v)", snaps, err)
	}
	if logs.Len() == 0 {
		t.Error("nothing was logged")
	}
}

func TestBootstrap_LockHeldUntilClose(t *testing.T) {
	cfg := testConfig(t)

	first := NewBootstrap(cfg)
	if err := first.Initialize(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	second := NewBootstrap(cfg)
	if err := second.Initialize(&bytes.Buffer{}); err == nil {
		second.Close()
		t.Fatal("second bootstrap acquired a held workspace")
	}

	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(first.WorkDir, "instance.lock")); !os.IsNotExist(err) {
		t.Errorf("lock file left behind: %v", err)
	}
	third := NewBootstrap(cfg)
	if err := third.Initialize(&bytes.Buffer{}); err != nil {
		t.Fatalf("bootstrap after release: %v", err)
	}
	third.Close()
}

func TestBootstrap_StreamsWhileRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Days = 10
	cfg.Stream.Enabled = true
	cfg.Stream.Addr = "127.0.0.1:0"

	b := NewBootstrap(cfg)
	if err := b.Initialize(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Hub == nil {
		t.Fatal("hub not created")
	}

	if _, err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Nothing connected, so nothing was queued or dropped.
	if sent, dropped := b.Hub.Stats(); sent != 0 || dropped != 0 {
		t.Errorf("stats sent=%d dropped=%d", sent, dropped)
	}
}

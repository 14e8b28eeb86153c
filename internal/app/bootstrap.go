// Package app wires configuration, storage, streaming and the engine into a runnable process.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/itrapnauskas/market-simulator/backtest"
	"github.com/itrapnauskas/market-simulator/internal/detection"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"github.com/itrapnauskas/market-simulator/internal/event"
	"github.com/itrapnauskas/market-simulator/internal/infra"
	"github.com/itrapnauskas/market-simulator/internal/storage"
	"github.com/itrapnauskas/market-simulator/internal/stream"
	"golang.org/x/sync/errgroup"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	WorkDir   string
	Store     *storage.RunStore
	Snapshots *storage.SnapshotManager
	Hub       *stream.Hub

	unlock func()
}

// Outcome is what one executed run produced.
type Outcome struct {
	RunID     string
	States    []domain.MarketState
	Detection *detection.Result
	Summary   infra.RunSummary
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(cfg *infra.Config) *Bootstrap {
	return &Bootstrap{Config: cfg}
}

// Initialize sets up logging, the workspace, its lock, the journal and the
// optional stream hub. Log output goes to w.
func (b *Bootstrap) Initialize(w io.Writer) error {
	cfg := b.Config

	event.Warmup(64)

	b.Logger = infra.NewLogger(cfg, w)
	slog.SetDefault(b.Logger)

	b.WorkDir = infra.GetWorkspaceDir()
	if err := infra.EnsureDir(b.WorkDir); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	infra.ResolveStoragePaths(cfg, b.WorkDir)
	if err := infra.EnsureDir(filepath.Dir(cfg.Storage.DBPath)); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(cfg.Storage.SnapshotDir); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	unlock, err := infra.CreateLockFile(b.WorkDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	store, err := storage.NewRunStore(cfg.Storage.DBPath)
	if err != nil {
		b.Close()
		return err
	}
	b.Store = store
	b.Snapshots = storage.NewSnapshotManager(cfg.Storage.SnapshotDir)
	b.Logger.Info("Journal opened (WAL-mode)", slog.String("path", cfg.Storage.DBPath))

	if cfg.Stream.Enabled {
		b.Hub = stream.NewHub(stream.Options{
			MaxFrameRate: cfg.Stream.MaxFrameRate,
			Burst:        cfg.Stream.Burst,
			SendBuffer:   cfg.Stream.SendBuffer,
			Logger:       b.Logger,
		})
	}
	return nil
}

// Options returns the engine options for the initialized resources.
func (b *Bootstrap) Options() []engine.Option {
	opts := []engine.Option{engine.WithLogger(b.Logger)}
	if b.Store != nil {
		opts = append(opts, engine.WithStore(b.Store))
	}
	if b.Snapshots != nil {
		opts = append(opts, engine.WithSnapshots(b.Snapshots, 0))
	}
	if b.Hub != nil {
		opts = append(opts, engine.WithStateHook(b.Hub.Publish))
	}
	return opts
}

// Execute runs the configured number of rounds, streaming states while it
// runs, then scores the history when detection is enabled.
func (b *Bootstrap) Execute(ctx context.Context) (*Outcome, error) {
	cfg := b.Config

	sim, err := engine.New(cfg.Simulation, b.Options()...)
	if err != nil {
		return nil, err
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	var g errgroup.Group
	if b.Hub != nil {
		g.Go(func() error { return b.Hub.ListenAndServe(serveCtx, cfg.Stream.Addr) })
	}

	states, runErr := sim.Run(ctx, cfg.Run.Days)
	stopServe()
	if err := g.Wait(); err != nil {
		b.Logger.Warn("Stream hub stopped with error", slog.Any("error", err))
	}
	if runErr != nil {
		return nil, runErr
	}

	out := &Outcome{
		RunID:   sim.RunID(),
		States:  states,
		Summary: infra.NewRunSummary(sim.RunID(), cfg.Simulation.InitialPrice, states),
	}
	if m := sim.Manipulator(); m != nil {
		out.Summary.ManipulatorPhase = string(m.Phase())
		out.Summary.ManipulatorPnL = m.Equity(sim.LastPrice()).Sub(m.InitialEquity()).StringFixed(2)
	}

	if cfg.Run.Detect {
		res, err := b.detect(ctx, out.RunID, states)
		if err != nil {
			return nil, err
		}
		out.Detection = &res
		out.States = detection.Attach(states, res)
		out.Summary.Detected = true
		out.Summary.Confidence = res.Confidence
		for _, a := range res.IsAnomaly {
			if a {
				out.Summary.Anomalies++
			}
		}
	}

	if keep := cfg.Storage.KeepSnapshots; keep > 0 && b.Snapshots != nil {
		if err := b.Snapshots.Cleanup(keep); err != nil {
			b.Logger.Warn("Snapshot cleanup failed", slog.Any("error", err))
		}
	}
	return out, nil
}

func (b *Bootstrap) detect(ctx context.Context, runID string, states []domain.MarketState) (detection.Result, error) {
	ens, err := detection.NewEnsemble(b.Config.Detection)
	if err != nil {
		return detection.Result{}, err
	}
	res, err := ens.DetectContext(ctx, states)
	if err != nil {
		return detection.Result{}, err
	}
	if b.Store != nil {
		if err := backtest.SaveDetection(ctx, b.Store, runID, res); err != nil {
			return detection.Result{}, fmt.Errorf("failed to store detection result: %w", err)
		}
	}
	b.Logger.Info("Detection finished",
		slog.String("run_id", runID),
		slog.Float64("confidence", res.Confidence),
		slog.Any("insufficient", res.Metadata["insufficient_data"]))
	return res, nil
}

// Close releases the hub, the journal and the workspace lock.
func (b *Bootstrap) Close() error {
	if b.Hub != nil {
		b.Hub.Close()
	}
	var err error
	if b.Store != nil {
		err = b.Store.Close()
		b.Store = nil
	}
	if b.unlock != nil {
		b.unlock()
		b.unlock = nil
	}
	return err
}

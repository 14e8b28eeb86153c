package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itrapnauskas/market-simulator/backtest"
	"github.com/itrapnauskas/market-simulator/internal/app"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/infra"
	"github.com/itrapnauskas/market-simulator/internal/stream"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "market-lab",
		Short: "Market Lab - auction-priced market simulator with manipulation detection",
		Long: `Market Lab clears a population of random traders through a daily call auction,
optionally adds a capital-rich manipulator, and scores the resulting history
for manipulation.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file path (default: configs/config.yaml if present)")
	rootCmd.PersistentFlags().String("db", "", "Run journal path (overrides storage.db_path)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig applies --config and --db on top of the file and environment.
func loadConfig(cmd *cobra.Command) (*infra.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Storage.DBPath = db
	}
	return cfg, nil
}

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a market and journal every round",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Run.Days, _ = cmd.Flags().GetInt("days")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.RandomSeed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("detect") {
				cfg.Run.Detect, _ = cmd.Flags().GetBool("detect")
			}
			if ws, _ := cmd.Flags().GetString("ws"); ws != "" {
				cfg.Stream.Enabled = true
				cfg.Stream.Addr = ws
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %w", infra.ErrInvalidConfig, err)
			}
			return runSimulation(cmd, cfg)
		},
	}

	cmd.Flags().Int("days", 0, "Number of rounds to simulate (overrides run.days)")
	cmd.Flags().Uint64("seed", 0, "Master random seed (overrides random_seed)")
	cmd.Flags().String("ws", "", "Stream market states over websocket at this address, e.g. 127.0.0.1:8765")
	cmd.Flags().Bool("detect", false, "Score the run with the detection ensemble when it finishes")
	return cmd
}

func runSimulation(cmd *cobra.Command, cfg *infra.Config) error {
	out := cmd.OutOrStdout()
	infra.PrintBanner(out, cfg)

	b := app.NewBootstrap(cfg)
	if err := b.Initialize(cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	defer b.Close()

	outcome, err := b.Execute(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("Run interrupted")
		}
		return err
	}
	fmt.Fprintln(out, infra.RenderSummary(outcome.Summary))
	return nil
}

// newReplayCmd creates the replay command
func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-simulate a journaled run and check it reproduces exactly",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, runID, err := openReplayer(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Verify(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s reproduced exactly\n", runID)
			return nil
		},
	}
	cmd.Flags().String("run", "", "Run id (default: latest run)")
	return cmd
}

// newDetectCmd creates the detect command
func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score a journaled run with the detection ensemble",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, runID, err := openReplayer(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			rep, err := r.Replay(cmd.Context(), runID, cfg.Detection)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Fprintf(out, "run %s: %d rounds, confidence %.3f\n", runID, len(rep.States), rep.Result.Confidence)
			for _, p := range rep.ByPhase {
				fmt.Fprintf(out, "  %-12s rounds=%-4d mean=%.3f flagged=%d\n", p.Phase, p.Rounds, p.MeanScore, p.Flagged)
			}
			top, _ := cmd.Flags().GetInt("top")
			for _, s := range rep.TopRounds(top) {
				fmt.Fprintf(out, "  day %-5d price=%-10.2f volume=%-10.2f score=%.3f\n", s.Day, s.Price, s.Volume, *s.ManipulationScore)
			}
			return nil
		},
	}
	cmd.Flags().String("run", "", "Run id (default: latest run)")
	cmd.Flags().Int("top", 5, "Number of highest-scoring rounds to list")
	cmd.Flags().Bool("json", false, "Print the full report as JSON")
	return cmd
}

// newRunsCmd creates the runs command
func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List journaled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			infra.ResolveStoragePaths(cfg, infra.GetWorkspaceDir())
			r, err := backtest.NewReplayer(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer r.Close()

			runs, err := r.Runs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, run := range runs {
				fmt.Fprintf(out, "%s  seed=%-20d days=%-6d config=%.12s\n", run.ID, run.Seed, run.Days, run.Fingerprint)
			}
			return nil
		},
	}
}

// openReplayer opens the journal and resolves --run, defaulting to the latest run.
func openReplayer(cmd *cobra.Command) (*backtest.Replayer, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	infra.ResolveStoragePaths(cfg, infra.GetWorkspaceDir())

	r, err := backtest.NewReplayer(cfg.Storage.DBPath)
	if err != nil {
		return nil, "", err
	}
	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		if runID, err = r.Latest(cmd.Context()); err != nil {
			r.Close()
			return nil, "", err
		}
	}
	return r, runID, nil
}

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print market states streamed by a running simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			out := cmd.OutOrStdout()

			sub := stream.NewSubscriber(url, func(s domain.MarketState) {
				line := fmt.Sprintf("day %-5d price=%-10.2f volume=%-10.2f imbalance=%+.2f", s.Day, s.Price, s.Volume, s.Imbalance)
				if s.Phase != "" {
					line += " phase=" + s.Phase
				}
				fmt.Fprintln(out, line)
			}, slog.Default())
			sub.Start(cmd.Context())
			<-cmd.Context().Done()
			sub.Stop()
			return nil
		},
	}
	cmd.Flags().String("url", "ws://127.0.0.1:8765/ws", "Hub websocket URL")
	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", infra.AppName, infra.Version)
		},
	}
}

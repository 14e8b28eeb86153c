package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/itrapnauskas/market-simulator/internal/scenario"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func verdict(ok bool) string {
	if ok {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scenario",
		Short:        "Run the reference market scenarios over several seeds",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			first, _ := cmd.Flags().GetUint64("seed")
			n, _ := cmd.Flags().GetInt("seeds")
			parallel, _ := cmd.Flags().GetInt("parallel")
			if n < 1 {
				return fmt.Errorf("--seeds must be >= 1, got %d", n)
			}
			seeds := make([]uint64, n)
			for i := range seeds {
				seeds[i] = first + uint64(i)
			}

			opts := scenario.DefaultOptions()
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
			}

			start := time.Now()
			rep, err := scenario.RunAll(cmd.Context(), seeds, parallel, opts)
			if err != nil {
				return err
			}
			if !printReport(cmd.OutOrStdout(), rep, time.Since(start)) {
				return fmt.Errorf("one or more scenarios failed")
			}
			return nil
		},
	}
	cmd.Flags().Uint64("seed", 1, "First seed")
	cmd.Flags().Int("seeds", 5, "Number of consecutive seeds")
	cmd.Flags().Int("parallel", runtime.NumCPU(), "Seeds simulated at once")
	cmd.Flags().Bool("verbose", false, "Log engine output to stderr")
	return cmd
}

// printReport writes per-seed figures and the aggregate verdicts. It reports whether all passed.
func printReport(w io.Writer, rep *scenario.Report, took time.Duration) bool {
	fmt.Fprintln(w, titleStyle.Render("Fair market: log returns are a random walk"))
	for _, f := range rep.Fair {
		fmt.Fprintf(w, "  seed %-4d JB=%-7.2f lag1=%+.3f (bound %.3f)\n", f.Seed, f.JarqueBera, f.Autocorr, f.AutocorrBound)
	}
	normal, uncorrelated := rep.FairPasses()
	n := len(rep.Fair)
	fairOK := 2*normal > n && 2*uncorrelated > n
	fmt.Fprintf(w, "  %s normal %d/%d, uncorrelated %d/%d\n\n", verdict(fairOK), normal, n, uncorrelated, n)

	fmt.Fprintln(w, titleStyle.Render("Wealth limits narrow the price band"))
	for _, b := range rep.Bands {
		fmt.Fprintf(w, "  seed %-4d unconstrained=%-8.2f limited=%.2f\n", b.Seed, b.Unconstrained, b.Limited)
	}
	free, limited := rep.MeanBands()
	bandOK := limited < free
	fmt.Fprintf(w, "  %s mean band %.2f vs %.2f\n\n", verdict(bandOK), limited, free)

	fmt.Fprintln(w, titleStyle.Render("Pump and dump profits and is detected"))
	profitable := 0
	for _, p := range rep.PumpDump {
		if p.Profitable() {
			profitable++
		}
		fmt.Fprintf(w, "  seed %-4d P&L=%-12s pump/dump=%.3f accumulate=%.3f control=%.3f\n",
			p.Seed, p.FinalEquity.Sub(p.InitialEquity).StringFixed(2), p.Manipulated, p.Accumulating, p.Control)
	}
	manipulated, accumulating, control := rep.MeanScores()
	pdOK := profitable == len(rep.PumpDump) && manipulated > accumulating && manipulated > control
	fmt.Fprintf(w, "  %s profitable %d/%d, mean scores %.3f > %.3f, %.3f\n\n",
		verdict(pdOK), profitable, len(rep.PumpDump), manipulated, accumulating, control)

	fmt.Fprintf(w, "finished in %s\n", took.Round(time.Millisecond))
	return fairOK && bandOK && pdOK
}

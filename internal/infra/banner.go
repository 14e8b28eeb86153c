package infra

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"gonum.org/v1/gonum/floats"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.DoubleBorder()).
			Padding(0, 2).
			Width(60)

	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(60)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(16)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// modeColors keyed by the banner mode.
var modeColors = map[string]lipgloss.Color{
	"FAIR":        lipgloss.Color("#10B981"),
	"LIMITED":     lipgloss.Color("#06B6D4"),
	"MANIPULATED": lipgloss.Color("#EF4444"),
}

// Mode names the market regime a config runs.
func Mode(c engine.Config) string {
	switch {
	case c.ManipulatorEnabled:
		return "MANIPULATED"
	case c.WealthMode == engine.WealthLimited:
		return "LIMITED"
	default:
		return "FAIR"
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// RenderBanner returns the startup banner for cfg.
func RenderBanner(cfg *Config) string {
	sim := cfg.Simulation
	mode := Mode(sim)

	lines := []string{
		"Market Lab auction simulator",
		"",
		row("MODE", mode),
		row("VERSION", cfg.App.Version),
		row("TRADERS", fmt.Sprintf("%d (%s)", sim.TraderCount, sim.WealthMode)),
		row("SEED", fmt.Sprintf("%d", sim.RandomSeed)),
		row("SENTIMENT", sim.SentimentMode),
	}
	if sim.ManipulatorEnabled {
		lines = append(lines,
			row("STRATEGY", sim.Manipulator.Strategy),
			"",
			warnStyle.Render("An adversarial participant is active in this run."))
	}
	return bannerStyle.
		BorderForeground(modeColors[mode]).
		Foreground(modeColors[mode]).
		Render(strings.Join(lines, "\n"))
}

// PrintBanner writes the startup banner.
func PrintBanner(w io.Writer, cfg *Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderBanner(cfg))
	fmt.Fprintln(w)
}

// RunSummary is the end-of-run digest shown on the console.
type RunSummary struct {
	RunID        string
	Days         int
	InitialPrice float64
	FinalPrice   float64
	MinPrice     float64
	MaxPrice     float64
	TotalVolume  float64

	// Manipulator figures are empty when no manipulator ran.
	ManipulatorPhase string
	ManipulatorPnL   string

	// Detection figures are set only when detection ran.
	Detected   bool
	Confidence float64
	Anomalies  int
}

// NewRunSummary digests a completed history.
func NewRunSummary(runID string, initialPrice float64, states []domain.MarketState) RunSummary {
	s := RunSummary{RunID: runID, Days: len(states), InitialPrice: initialPrice, FinalPrice: initialPrice}
	if len(states) == 0 {
		s.MinPrice, s.MaxPrice = initialPrice, initialPrice
		return s
	}
	prices := domain.Prices(states)
	s.FinalPrice = prices[len(prices)-1]
	s.MinPrice = floats.Min(prices)
	s.MaxPrice = floats.Max(prices)
	s.TotalVolume = floats.Sum(domain.Volumes(states))
	return s
}

// RenderSummary formats s as a bordered table.
func RenderSummary(s RunSummary) string {
	change := 0.0
	if s.InitialPrice > 0 {
		change = (s.FinalPrice/s.InitialPrice - 1) * 100
	}
	lines := []string{
		row("RUN", s.RunID),
		row("ROUNDS", fmt.Sprintf("%d", s.Days)),
		row("PRICE", fmt.Sprintf("%.2f -> %.2f (%+.2f%%)", s.InitialPrice, s.FinalPrice, change)),
		row("RANGE", fmt.Sprintf("%.2f .. %.2f", s.MinPrice, s.MaxPrice)),
		row("VOLUME", fmt.Sprintf("%.2f", s.TotalVolume)),
	}
	if s.ManipulatorPhase != "" {
		lines = append(lines,
			row("MANIP PHASE", s.ManipulatorPhase),
			row("MANIP P&L", s.ManipulatorPnL))
	}
	if s.Detected {
		lines = append(lines,
			row("CONFIDENCE", fmt.Sprintf("%.3f", s.Confidence)),
			row("ANOMALIES", fmt.Sprintf("%d", s.Anomalies)))
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

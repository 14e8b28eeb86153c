package scenario

import (
	"context"
	"math"
	"testing"

	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// Both checks are 5% tests, so a fair market still fails one seed in twenty.
// The market passes when most seeds pass.
func TestScenario_FairMarketRandomWalk(t *testing.T) {
	if testing.Short() {
		t.Skip("scenario")
	}
	seeds := []uint64{1, 2, 3, 4, 5}
	normal, uncorrelated := 0, 0
	for _, seed := range seeds {
		r, err := FairMarket(context.Background(), seed, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("seed %d: JB=%.2f lag1=%.3f (bound %.3f)", seed, r.JarqueBera, r.Autocorr, r.AutocorrBound)
		if r.Normal() {
			normal++
		}
		if r.Uncorrelated() {
			uncorrelated++
		}
	}
	if 2*normal <= len(seeds) {
		t.Errorf("log returns normal for %d of %d seeds", normal, len(seeds))
	}
	if 2*uncorrelated <= len(seeds) {
		t.Errorf("log returns uncorrelated for %d of %d seeds", uncorrelated, len(seeds))
	}
}

// The band of a single random walk varies a lot between seeds, so the
// comparison averages the 2-sigma band over several paired runs.
func TestScenario_WealthBands(t *testing.T) {
	if testing.Short() {
		t.Skip("scenario")
	}
	rep := &Report{}
	for seed := uint64(100); seed < 105; seed++ {
		b, err := WealthBands(context.Background(), seed, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		rep.Bands = append(rep.Bands, b)
	}
	free, limited := rep.MeanBands()
	t.Logf("mean band width: unconstrained %.2f, wealth-limited %.2f", free, limited)
	if limited >= free {
		t.Errorf("wealth-limited band %.2f not narrower than unconstrained %.2f", limited, free)
	}
}

func TestScenario_PumpAndDump(t *testing.T) {
	if testing.Short() {
		t.Skip("scenario")
	}
	rep := &Report{}
	for _, seed := range []uint64{42, 43, 44} {
		r, err := PumpAndDump(context.Background(), seed, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if !r.Profitable() {
			t.Errorf("seed %d: manipulator equity %s did not exceed initial %s", seed, r.FinalEquity, r.InitialEquity)
		}
		rep.PumpDump = append(rep.PumpDump, r)
	}

	manipulated, accumulating, control := rep.MeanScores()
	t.Logf("mean ensemble score: pump/dump %.3f, accumulate %.3f, control %.3f", manipulated, accumulating, control)
	if math.IsNaN(manipulated) || math.IsNaN(accumulating) {
		t.Fatal("a phase never occurred")
	}
	if manipulated <= accumulating {
		t.Errorf("pump/dump score %.3f not above accumulate %.3f", manipulated, accumulating)
	}
	if manipulated <= control {
		t.Errorf("pump/dump score %.3f not above control %.3f", manipulated, control)
	}
}

func TestRunAll_OrdersBySeed(t *testing.T) {
	opts := Options{FairDays: 20, BandDays: 20, PumpDumpDays: 40}
	seeds := []uint64{9, 3, 5}
	rep, err := RunAll(context.Background(), seeds, 2, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i, seed := range seeds {
		if rep.Fair[i].Seed != seed || rep.Bands[i].Seed != seed || rep.PumpDump[i].Seed != seed {
			t.Errorf("result %d not for seed %d", i, seed)
		}
	}
	normal, uncorrelated := rep.FairPasses()
	if normal > 3 || uncorrelated > 3 {
		t.Errorf("pass counts %d/%d exceed seeds", normal, uncorrelated)
	}
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunAll(ctx, []uint64{1}, 1, DefaultOptions()); err == nil {
		t.Fatal("cancelled run succeeded")
	}
}

func TestStatistics(t *testing.T) {
	states := []domain.MarketState{{Price: 110}, {Price: 99}}
	r := LogReturns(states, 100)
	if math.Abs(r[0]-math.Log(1.1)) > 1e-12 || math.Abs(r[1]-math.Log(0.9)) > 1e-12 {
		t.Errorf("log returns %v", r)
	}

	if ac := Lag1Autocorrelation([]float64{1, 1, 1}); ac != 0 {
		t.Errorf("constant series autocorrelation %v", ac)
	}
	if ac := Lag1Autocorrelation([]float64{1, -1, 1, -1, 1, -1}); ac > -0.5 {
		t.Errorf("alternating series autocorrelation %v, want strongly negative", ac)
	}

	scores := []float64{0.2, 0.8, 0.4}
	phased := []domain.MarketState{{Phase: "pump"}, {Phase: "dump"}, {Phase: "accumulate"}}
	if m := MeanWhere(scores, phased, func(s domain.MarketState) bool { return s.Phase != "accumulate" }); math.Abs(m-0.5) > 1e-12 {
		t.Errorf("mean where = %v", m)
	}
	if m := MeanWhere(scores, phased, func(domain.MarketState) bool { return false }); !math.IsNaN(m) {
		t.Errorf("empty selection = %v, want NaN", m)
	}
}

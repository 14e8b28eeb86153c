package manipulation

import (
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/trader"
)

// Strategy supplies the transition table and the per-phase quoting policy.
// Quotes must go through the budget so that every round stays feasible.
type Strategy interface {
	Name() string
	Rules() Table
	Quotes(st Status, view trader.MarketView, b *Budget, r *rand.Rand)
}

func after(rounds int) func(Status, Observation) bool {
	return func(st Status, _ Observation) bool { return st.RoundsInPhase >= rounds }
}

func holdingsAtMost(dust float64) func(Status, Observation) bool {
	return func(_ Status, obs Observation) bool { return obs.Holdings.Float64() <= dust }
}

// closeOut is the exit rule of the last phase: back to start when repeating, else idle.
func closeOut(start Phase, repeat bool, when func(Status, Observation) bool) []Rule {
	if repeat {
		return []Rule{{To: start, When: when}}
	}
	return []Rule{{To: PhaseIdle, When: when}}
}

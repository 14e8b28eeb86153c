package manipulation

import (
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/trader"
)

// PumpAndDump accumulates below the market, pushes the price with marketable
// buys and paired wash volume, then sells into the move.
type PumpAndDump struct {
	p PumpDumpParams
}

func (s *PumpAndDump) Name() string { return StrategyPumpAndDump }

func (s *PumpAndDump) Rules() Table {
	p := s.p
	return Table{
		PhaseAccumulate: {{
			To: PhasePump,
			When: func(st Status, obs Observation) bool {
				if st.RoundsInPhase >= p.AccumulateRounds {
					return true
				}
				return p.TargetHoldings > 0 && obs.Holdings.Float64() >= p.TargetHoldings
			},
		}},
		PhasePump: {{
			To: PhaseDump,
			When: func(st Status, obs Observation) bool {
				if st.RoundsInPhase >= p.PumpRounds {
					return true
				}
				return p.TargetMultiple > 0 && obs.Price >= st.EntryPrice*p.TargetMultiple
			},
		}},
		PhaseDump: closeOut(PhaseAccumulate, p.Repeat, func(st Status, obs Observation) bool {
			return holdingsAtMost(p.DustHoldings)(st, obs) || after(p.DumpRounds)(st, obs)
		}),
	}
}

func (s *PumpAndDump) Quotes(st Status, view trader.MarketView, b *Budget, r *rand.Rand) {
	last := view.LastPrice
	switch st.Phase {
	case PhaseAccumulate:
		b.Buy(last*(1-s.p.AccumulateDiscount), jitter(s.p.AccumulateVolume, r.Float64()))
	case PhasePump:
		// Paired volume is sized before the marketable buy.
		b.Pair(last*(1+s.p.PumpPremium/2), jitter(s.p.WashVolume, r.Float64()))
		b.Buy(last*(1+s.p.PumpPremium), jitter(s.p.PumpVolume, r.Float64()))
	case PhaseDump:
		b.Sell(last*(1-s.p.DumpDiscount), jitter(s.p.DumpVolume, r.Float64()))
	}
}

package manipulation

import (
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/trader"
)

// WashTrading builds a small inventory, then trades with itself at a tight
// spread around the last price to inflate reported volume, then unwinds.
// Phases map as accumulate=build, pump=wash, dump=unwind.
type WashTrading struct {
	p WashParams
}

func (s *WashTrading) Name() string { return StrategyWashTrading }

func (s *WashTrading) Rules() Table {
	return Table{
		PhaseAccumulate: {{To: PhasePump, When: after(s.p.BuildRounds)}},
		PhasePump:       {{To: PhaseDump, When: after(s.p.WashRounds)}},
		PhaseDump:       closeOut(PhaseAccumulate, s.p.Repeat, after(s.p.UnwindRounds)),
	}
}

func (s *WashTrading) Quotes(st Status, view trader.MarketView, b *Budget, r *rand.Rand) {
	last := view.LastPrice
	switch st.Phase {
	case PhaseAccumulate:
		b.Buy(last, jitter(s.p.BuildVolume, r.Float64()))
	case PhasePump:
		size := jitter(s.p.WashVolume*s.p.VolumeMultiplier, r.Float64())
		size = min(size, b.Shares().Float64())
		b.Buy(last*(1+s.p.Spread/2), size)
		b.Sell(last*(1-s.p.Spread/2), size)
	case PhaseDump:
		b.Sell(last, jitter(s.p.UnwindVolume, r.Float64()))
	}
}

package manipulation

import (
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/trader"
)

// Spoofing posts a ladder of large bids below the market to skew the visible
// demand curve while selling a genuine quantity above it. More than one level
// is layering. Phases map as accumulate=build, pump=spoof, dump=unwind.
type Spoofing struct {
	p SpoofParams
}

func (s *Spoofing) Name() string { return StrategySpoofing }

func (s *Spoofing) Rules() Table {
	return Table{
		PhaseAccumulate: {{To: PhasePump, When: after(s.p.BuildRounds)}},
		PhasePump:       {{To: PhaseDump, When: after(s.p.SpoofRounds)}},
		PhaseDump:       closeOut(PhaseAccumulate, s.p.Repeat, after(s.p.UnwindRounds)),
	}
}

func (s *Spoofing) Quotes(st Status, view trader.MarketView, b *Budget, r *rand.Rand) {
	last := view.LastPrice
	switch st.Phase {
	case PhaseAccumulate:
		b.Buy(last, jitter(s.p.BuildVolume, r.Float64()))
	case PhasePump:
		b.Sell(last*(1+s.p.GenuinePremium), jitter(s.p.GenuineVolume, r.Float64()))
		for k := 0; k < s.p.Levels; k++ {
			b.Buy(last*(1-s.p.Offset-float64(k)*s.p.LevelSpacing), jitter(s.p.SpoofVolume, r.Float64()))
		}
	case PhaseDump:
		b.Sell(last, jitter(s.p.UnwindVolume, r.Float64()))
	}
}

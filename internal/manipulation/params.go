package manipulation

import (
	"errors"
	"fmt"

	"github.com/itrapnauskas/market-simulator/pkg/safe"
)

// Strategy names recognized in configuration.
const (
	StrategyPumpAndDump = "pump_and_dump"
	StrategyWashTrading = "wash_trading"
	StrategySpoofing    = "spoofing"
)

// PumpDumpParams drive the accumulate -> pump -> dump cycle.
// Zero TargetHoldings or TargetMultiple disables that trigger.
type PumpDumpParams struct {
	AccumulateRounds   int     `yaml:"accumulate_rounds"`
	TargetHoldings     float64 `yaml:"target_holdings"`
	AccumulateDiscount float64 `yaml:"accumulate_discount"`
	AccumulateVolume   float64 `yaml:"accumulate_volume"`

	PumpRounds     int     `yaml:"pump_rounds"`
	TargetMultiple float64 `yaml:"target_multiple"`
	PumpPremium    float64 `yaml:"pump_premium"`
	PumpVolume     float64 `yaml:"pump_volume"`
	WashVolume     float64 `yaml:"wash_volume"`

	DumpRounds   int     `yaml:"dump_rounds"`
	DumpDiscount float64 `yaml:"dump_discount"`
	DumpVolume   float64 `yaml:"dump_volume"`
	DustHoldings float64 `yaml:"dust_holdings"`

	Repeat bool `yaml:"repeat"`
}

// WashParams drive inventory build-up, paired self-trades, then unwind.
type WashParams struct {
	BuildRounds      int     `yaml:"build_rounds"`
	BuildVolume      float64 `yaml:"build_volume"`
	WashRounds       int     `yaml:"wash_rounds"`
	Spread           float64 `yaml:"spread"`
	WashVolume       float64 `yaml:"wash_volume"`
	VolumeMultiplier float64 `yaml:"volume_multiplier"`
	UnwindRounds     int     `yaml:"unwind_rounds"`
	UnwindVolume     float64 `yaml:"unwind_volume"`
	Repeat           bool    `yaml:"repeat"`
}

// SpoofParams drive large non-marketable bid ladders with genuine sells behind them.
// Levels > 1 is layering.
type SpoofParams struct {
	BuildRounds    int     `yaml:"build_rounds"`
	BuildVolume    float64 `yaml:"build_volume"`
	SpoofRounds    int     `yaml:"spoof_rounds"`
	Levels         int     `yaml:"levels"`
	Offset         float64 `yaml:"offset"`
	LevelSpacing   float64 `yaml:"level_spacing"`
	SpoofVolume    float64 `yaml:"spoof_volume"`
	GenuinePremium float64 `yaml:"genuine_premium"`
	GenuineVolume  float64 `yaml:"genuine_volume"`
	UnwindRounds   int     `yaml:"unwind_rounds"`
	UnwindVolume   float64 `yaml:"unwind_volume"`
	Repeat         bool    `yaml:"repeat"`
}

// Params is the manipulator section of the run configuration.
type Params struct {
	Strategy        string         `yaml:"strategy"`
	WealthMultiple  float64        `yaml:"wealth_multiple"`
	InitialHoldings float64        `yaml:"initial_holdings"`
	StartDay        int            `yaml:"start_day"`
	PumpAndDump     PumpDumpParams `yaml:"pump_and_dump"`
	WashTrading     WashParams     `yaml:"wash_trading"`
	Spoofing        SpoofParams    `yaml:"spoofing"`
}

// DefaultParams returns a pump-and-dump manipulator with ten times average wealth.
func DefaultParams() Params {
	return Params{
		Strategy:       StrategyPumpAndDump,
		WealthMultiple: 10,
		StartDay:       1,
		PumpAndDump: PumpDumpParams{
			AccumulateRounds: 30,
			AccumulateVolume: 15,
			PumpRounds:       10,
			PumpPremium:      0.02,
			PumpVolume:       30,
			WashVolume:       30,
			DumpRounds:       15,
			DumpDiscount:     0.01,
			DumpVolume:       45,
			DustHoldings:     0.01,
		},
		WashTrading: WashParams{
			BuildRounds:      10,
			BuildVolume:      10,
			WashRounds:       40,
			Spread:           0.001,
			WashVolume:       15,
			VolumeMultiplier: 3,
			UnwindRounds:     10,
			UnwindVolume:     20,
		},
		Spoofing: SpoofParams{
			BuildRounds:    10,
			BuildVolume:    10,
			SpoofRounds:    20,
			Levels:         3,
			Offset:         0.02,
			LevelSpacing:   0.005,
			SpoofVolume:    50,
			GenuinePremium: 0.005,
			GenuineVolume:  10,
			UnwindRounds:   10,
			UnwindVolume:   20,
		},
	}
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if !safe.Finite(v) {
			return false
		}
	}
	return true
}

// floats lists every numeric knob so a single pass can reject NaN and Inf.
func (p Params) floats() []float64 {
	pd, w, s := p.PumpAndDump, p.WashTrading, p.Spoofing
	return []float64{
		p.WealthMultiple, p.InitialHoldings,
		pd.TargetHoldings, pd.AccumulateDiscount, pd.AccumulateVolume, pd.TargetMultiple,
		pd.PumpPremium, pd.PumpVolume, pd.WashVolume, pd.DumpDiscount, pd.DumpVolume, pd.DustHoldings,
		w.BuildVolume, w.Spread, w.WashVolume, w.VolumeMultiplier, w.UnwindVolume,
		s.BuildVolume, s.Offset, s.LevelSpacing, s.SpoofVolume, s.GenuinePremium, s.GenuineVolume, s.UnwindVolume,
	}
}

// Validate rejects parameters that cannot drive a cycle.
func (p Params) Validate() error {
	if !allFinite(p.floats()...) {
		return errors.New("manipulator_params must be finite numbers")
	}
	if p.WealthMultiple <= 0 {
		return errors.New("manipulator.wealth_multiple must be positive")
	}
	if p.InitialHoldings < 0 {
		return errors.New("manipulator.initial_holdings must be >= 0")
	}
	if p.StartDay < 1 {
		return errors.New("manipulator.start_day must be >= 1")
	}
	switch p.Strategy {
	case StrategyPumpAndDump:
		pd := p.PumpAndDump
		if pd.AccumulateRounds < 1 || pd.PumpRounds < 1 || pd.DumpRounds < 1 {
			return errors.New("manipulator.pump_and_dump phase rounds must be >= 1")
		}
		if pd.AccumulateVolume < 0 || pd.PumpVolume < 0 || pd.WashVolume < 0 || pd.DumpVolume <= 0 {
			return errors.New("manipulator.pump_and_dump volumes must be non-negative and dump_volume positive")
		}
		if pd.TargetMultiple != 0 && pd.TargetMultiple <= 1 {
			return errors.New("manipulator.pump_and_dump.target_multiple must exceed 1")
		}
		if pd.AccumulateDiscount < 0 || pd.AccumulateDiscount >= 1 || pd.DumpDiscount < 0 || pd.DumpDiscount >= 1 {
			return errors.New("manipulator.pump_and_dump discounts must be in [0,1)")
		}
	case StrategyWashTrading:
		w := p.WashTrading
		if w.BuildRounds < 1 || w.WashRounds < 1 || w.UnwindRounds < 1 {
			return errors.New("manipulator.wash_trading phase rounds must be >= 1")
		}
		if w.Spread < 0 || w.Spread >= 1 || w.VolumeMultiplier <= 0 {
			return errors.New("manipulator.wash_trading spread must be in [0,1) and volume_multiplier positive")
		}
	case StrategySpoofing:
		s := p.Spoofing
		if s.BuildRounds < 1 || s.SpoofRounds < 1 || s.UnwindRounds < 1 {
			return errors.New("manipulator.spoofing phase rounds must be >= 1")
		}
		if s.Levels < 1 || s.Offset <= 0 || s.Offset+float64(s.Levels)*s.LevelSpacing >= 1 {
			return errors.New("manipulator.spoofing ladder must have >= 1 level inside (0,1) offset")
		}
	default:
		return fmt.Errorf("manipulator.strategy %q is not supported", p.Strategy)
	}
	return nil
}

// NewStrategy builds the configured strategy.
func NewStrategy(p Params) (Strategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Strategy {
	case StrategyWashTrading:
		return &WashTrading{p: p.WashTrading}, nil
	case StrategySpoofing:
		return &Spoofing{p: p.Spoofing}, nil
	default:
		return &PumpAndDump{p: p.PumpAndDump}, nil
	}
}

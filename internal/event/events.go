// Package event defines the journal records written once per simulation round.
package event

import (
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvRunStarted Type = iota + 1
	EvRoundCleared
	EvPhaseChanged
	EvRunFinished
)

func (t Type) String() string {
	switch t {
	case EvRunStarted:
		return "RUN_STARTED"
	case EvRoundCleared:
		return "ROUND_CLEARED"
	case EvPhaseChanged:
		return "PHASE_CHANGED"
	case EvRunFinished:
		return "RUN_FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Event is the interface for all journal events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetRunID() string
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq   uint64          `json:"seq"`
	Ts    quant.TimeStamp `json:"ts"`
	RunID string          `json:"run_id"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }
func (e BaseEvent) GetRunID() string       { return e.RunID }

// RunStartedEvent records the configuration a run was started with.
type RunStartedEvent struct {
	BaseEvent
	Seed        uint64 `json:"seed,string"`
	Fingerprint string `json:"fingerprint"`
	Config      string `json:"config"`
	TraderCount int    `json:"trader_count"`
	Manipulator string `json:"manipulator,omitempty"`
}

func (e RunStartedEvent) GetType() Type { return EvRunStarted }

// RoundClearedEvent carries the market state of one settled round.
type RoundClearedEvent struct {
	BaseEvent
	State    domain.MarketState `json:"state"`
	Qty      quant.QtySats      `json:"qty,string"`
	Orders   int                `json:"orders"`
	Rejected int                `json:"rejected"`
	Fills    int                `json:"fills"`
}

func (e RoundClearedEvent) GetType() Type { return EvRoundCleared }

// PhaseChangedEvent records a manipulator transition. To is active from Day+1.
type PhaseChangedEvent struct {
	BaseEvent
	Day   int     `json:"day"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Price float64 `json:"price"`
}

func (e PhaseChangedEvent) GetType() Type { return EvPhaseChanged }

// RunFinishedEvent closes a run.
type RunFinishedEvent struct {
	BaseEvent
	Days       int     `json:"days"`
	FinalPrice float64 `json:"final_price"`
}

func (e RunFinishedEvent) GetType() Type { return EvRunFinished }

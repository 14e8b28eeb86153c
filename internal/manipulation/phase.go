// Package manipulation implements capital-rich adversarial participants whose
// behavior is driven by an explicit phase transition table.
package manipulation

import (
	"fmt"

	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// Phase is a manipulator state.
type Phase string

const (
	PhaseAccumulate Phase = "accumulate"
	PhasePump       Phase = "pump"
	PhaseDump       Phase = "dump"
	// PhaseIdle is terminal: the cycle ended and does not repeat.
	PhaseIdle Phase = "idle"
)

// Status is the machine state visible to rules and order generation.
type Status struct {
	Phase         Phase   `json:"phase"`
	EnteredAt     int     `json:"entered_at"`
	RoundsInPhase int     `json:"rounds_in_phase"`
	EntryPrice    float64 `json:"entry_price"`
	Cycle         int     `json:"cycle"`
}

// Observation is the realized outcome of a round, as seen by the manipulator.
type Observation struct {
	Day      int
	Price    float64
	Volume   float64
	Holdings quant.QtySats
	Cash     decimal.Decimal
}

// Rule moves the machine to To when When holds.
type Rule struct {
	To   Phase
	When func(st Status, obs Observation) bool
}

// Table maps each state to its outgoing rules, evaluated in order.
type Table map[Phase][]Rule

// Allowed lists the states reachable in one step from p.
func (t Table) Allowed(p Phase) []Phase {
	out := make([]Phase, 0, len(t[p]))
	for _, r := range t[p] {
		out = append(out, r.To)
	}
	return out
}

// Validate checks that every target is a known state and every rule has a predicate.
func (t Table) Validate() error {
	for from, rules := range t {
		for _, r := range rules {
			if r.When == nil {
				return fmt.Errorf("rule %s -> %s has no predicate", from, r.To)
			}
			if _, ok := t[r.To]; !ok && r.To != PhaseIdle {
				return fmt.Errorf("rule %s -> %s targets an unknown state", from, r.To)
			}
		}
	}
	return nil
}

// Machine holds the current state and applies the table once per round.
type Machine struct {
	table  Table
	status Status
}

// NewMachine starts the machine in start, entered on day with the given price.
func NewMachine(table Table, start Phase, day int, price float64) (*Machine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if _, ok := table[start]; !ok {
		return nil, fmt.Errorf("start state %s not in table", start)
	}
	return &Machine{
		table:  table,
		status: Status{Phase: start, EnteredAt: day, EntryPrice: price},
	}, nil
}

// Status returns a copy of the current state.
func (m *Machine) Status() Status {
	return m.status
}

// Step records one completed round and evaluates the outgoing rules.
// The new phase takes effect from the next day.
func (m *Machine) Step(obs Observation) (from, to Phase, changed bool) {
	from = m.status.Phase
	m.status.RoundsInPhase++

	for _, r := range m.table[from] {
		if !r.When(m.status, obs) {
			continue
		}
		cycle := m.status.Cycle
		if r.To == PhaseAccumulate && from != PhaseAccumulate {
			cycle++
		}
		m.status = Status{
			Phase:      r.To,
			EnteredAt:  obs.Day + 1,
			EntryPrice: obs.Price,
			Cycle:      cycle,
		}
		return from, r.To, true
	}
	return from, from, false
}

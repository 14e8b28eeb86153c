package manipulation

import (
	"fmt"
	"math/rand/v2"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// ID is the account id used by the single manipulator of a run.
const ID = "manipulator"

// Manipulator is a wealth-limited participant that may submit several quotes
// per round. Its phase only changes through Transition.
type Manipulator struct {
	account  *domain.Account
	position domain.Position
	machine  *Machine
	strategy Strategy
	rng      *rand.Rand
	startDay int

	initialEquity decimal.Decimal
}

// New builds a manipulator around an existing limited account.
func New(p Params, account *domain.Account, initialPrice float64, seed uint64) (*Manipulator, error) {
	strategy, err := NewStrategy(p)
	if err != nil {
		return nil, err
	}
	machine, err := NewMachine(strategy.Rules(), PhaseAccumulate, p.StartDay, initialPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s machine: %w", strategy.Name(), err)
	}
	m := &Manipulator{
		account:       account,
		machine:       machine,
		strategy:      strategy,
		rng:           quant.NewRand(seed),
		startDay:      p.StartDay,
		initialEquity: account.Equity(initialPrice),
	}
	if account.Holdings > 0 {
		m.position.ApplyBuy(account.Holdings, quant.PriceDecimal(initialPrice))
	}
	return m, nil
}

// Endow returns the manipulator account for a population with the given average wealth.
func Endow(p Params, averageWealth decimal.Decimal) *domain.Account {
	cash := averageWealth.Mul(decimal.NewFromFloat(p.WealthMultiple)).Round(2)
	return domain.NewAccount(ID, cash, quant.FloorQtySats(p.InitialHoldings), true)
}

func (m *Manipulator) ID() string                { return m.account.ID }
func (m *Manipulator) Account() *domain.Account  { return m.account }
func (m *Manipulator) Strategy() string          { return m.strategy.Name() }
func (m *Manipulator) Phase() Phase              { return m.machine.Status().Phase }
func (m *Manipulator) Status() Status            { return m.machine.Status() }
func (m *Manipulator) Position() domain.Position { return m.position }

// GenerateOrders returns this round's quotes. It does not change the phase.
func (m *Manipulator) GenerateOrders(view trader.MarketView) []trader.Quote {
	st := m.machine.Status()
	if view.Day < m.startDay || st.Phase == PhaseIdle {
		return nil
	}
	b := NewBudget(m.account)
	m.strategy.Quotes(st, view, b, m.rng)
	return b.Quotes()
}

// ApplyFills updates cost basis from the round's fills that belong to this account.
func (m *Manipulator) ApplyFills(fills []domain.Fill) {
	for _, f := range fills {
		if f.TraderID != m.account.ID {
			continue
		}
		px := quant.PriceDecimal(f.Price)
		if f.Side == domain.SideBuy {
			m.position.ApplyBuy(f.Qty, px)
		} else {
			m.position.ApplySell(f.Qty, px)
		}
	}
}

// Transition feeds the settled round to the machine. Rounds before the start
// day are not counted.
func (m *Manipulator) Transition(day int, price, volume float64) (from, to Phase, changed bool) {
	if day < m.startDay {
		p := m.Phase()
		return p, p, false
	}
	return m.machine.Step(Observation{
		Day:      day,
		Price:    price,
		Volume:   volume,
		Holdings: m.account.Holdings,
		Cash:     m.account.Cash,
	})
}

// Equity marks the account to price.
func (m *Manipulator) Equity(price float64) decimal.Decimal {
	return m.account.Equity(price)
}

// InitialEquity is the equity at the initial price when the manipulator was created.
func (m *Manipulator) InitialEquity() decimal.Decimal {
	return m.initialEquity
}

// RealizedWealth is the profit booked on sells against the average entry price.
func (m *Manipulator) RealizedWealth() decimal.Decimal {
	return m.position.RealizedPnL
}

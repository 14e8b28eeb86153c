// Package engine runs the round-by-round auction market.
//
// Each round reads the sentiment curve, collects at most one quote per trader
// plus the manipulator's quotes, clears a single auction, settles the fills and
// only then advances the manipulator's phase. Rounds are strictly sequential.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/itrapnauskas/market-simulator/internal/auction"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/execution"
	"github.com/itrapnauskas/market-simulator/internal/manipulation"
	"github.com/itrapnauskas/market-simulator/internal/sentiment"
	"github.com/itrapnauskas/market-simulator/internal/storage"
	"github.com/itrapnauskas/market-simulator/internal/trader"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrHalted is returned by Step once a settled round could not be journaled.
var ErrHalted = errors.New("simulation halted")

// Option customizes a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithStore journals every round to store.
func WithStore(store *storage.RunStore) Option {
	return func(s *Simulation) { s.store = store }
}

// WithSnapshots writes a snapshot every n rounds (n <= 0 uses the config value)
// and enables the panic dump.
func WithSnapshots(sm *storage.SnapshotManager, n int) Option {
	return func(s *Simulation) {
		s.snapshots = sm
		if n > 0 {
			s.snapshotEvery = n
		}
	}
}

// WithStateHook is called with every appended state, from the run goroutine.
func WithStateHook(fn func(domain.MarketState)) Option {
	return func(s *Simulation) { s.onStateUpdate = fn }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Simulation) { s.runID = id }
}

// WithAgents adds participants beyond the configured population.
// Their accounts are registered in the book.
func WithAgents(agents ...trader.Trader) Option {
	return func(s *Simulation) { s.extra = append(s.extra, agents...) }
}

// Simulation owns all mutable state of one run.
type Simulation struct {
	cfg    Config
	logger *slog.Logger
	runID  string

	book    *domain.Book
	traders []trader.Trader
	extra   []trader.Trader
	manip   *manipulation.Manipulator
	source  sentiment.Source
	settler *execution.Settler

	store         *storage.RunStore
	snapshots     *storage.SnapshotManager
	snapshotEvery int
	onStateUpdate func(domain.MarketState)

	lastPrice float64
	day       int
	seq       uint64
	started   bool
	halted    error

	mu      sync.RWMutex // guards history and curves for external reads
	history []domain.MarketState
	curves  map[int]domain.OrderCurves
}

// New validates cfg and builds the population. Configuration problems are
// returned wrapped in ErrInvalidConfig.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	source, _ := cfg.SentimentSource()

	s := &Simulation{
		cfg:           cfg,
		logger:        slog.Default(),
		book:          domain.NewBook(),
		source:        source,
		snapshotEvery: cfg.SnapshotEvery,
		lastPrice:     cfg.InitialPrice,
		curves:        make(map[int]domain.OrderCurves),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.logger = s.logger.With(slog.String("run_id", s.runID))

	master := quant.NewRand(cfg.RandomSeed)
	s.traders = trader.BuildPopulation(trader.PopulationSpec{
		Count:    cfg.TraderCount,
		Limited:  cfg.WealthMode == WealthLimited,
		Wealth:   cfg.InitialWealth,
		Holdings: cfg.InitialHoldings,
		Params:   cfg.TraderParams(),
	}, master, s.book)

	if cfg.ManipulatorEnabled {
		avg := trader.AverageWealth(s.traders)
		if cfg.WealthMode == WealthUnlimited {
			avg = decimal.NewFromFloat((cfg.InitialWealth.Min + cfg.InitialWealth.Max) / 2)
		}
		acct := manipulation.Endow(cfg.Manipulator, avg)
		m, err := manipulation.New(cfg.Manipulator, acct, cfg.InitialPrice, quant.DeriveSeed(master))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		s.book.Add(acct)
		s.manip = m
	}
	for _, a := range s.extra {
		s.book.Add(a.Account())
	}

	s.settler = execution.NewSettler(s.book, s.logger)
	return s, nil
}

// Run executes nDays rounds and returns the states they produced.
// A feasibility panic is logged, the state is dumped, and the panic is re-raised.
func (s *Simulation) Run(ctx context.Context, nDays int) (states []domain.MarketState, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r), slog.Int("day", s.day+1))
			s.DumpState("panic_dump.json", fmt.Sprint(r))
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	states = make([]domain.MarketState, 0, nDays)
	for i := 0; i < nDays; i++ {
		if err := ctx.Err(); err != nil {
			return states, err
		}
		st, err := s.Step(ctx)
		if err != nil {
			return states, err
		}
		states = append(states, st)
	}

	if err := s.finish(ctx); err != nil {
		return states, err
	}
	s.logger.Info("Simulation finished",
		slog.Int("days", s.day),
		slog.Float64("last_price", s.lastPrice))
	return states, nil
}

type slot struct {
	quote trader.Quote
	ok    bool
}

// Step executes exactly one round. A journal failure before settlement leaves
// the simulation unchanged; one after settlement halts it.
func (s *Simulation) Step(ctx context.Context) (domain.MarketState, error) {
	if s.halted != nil {
		return domain.MarketState{}, fmt.Errorf("%w: %w", ErrHalted, s.halted)
	}
	if err := s.begin(ctx); err != nil {
		return domain.MarketState{}, err
	}
	day := s.day + 1
	sent := s.source.ValueAt(day)
	view := trader.MarketView{Day: day, LastPrice: s.lastPrice, Sentiment: sent}

	phase := ""
	if s.manip != nil {
		phase = string(s.manip.Phase())
	}

	orders, rejected, err := s.collectOrders(ctx, view)
	if err != nil {
		return domain.MarketState{}, err
	}

	grid := auction.BuildGrid(orders, s.lastPrice, s.cfg.PriceTick, s.cfg.MaxGridPoints)
	curves := auction.Aggregate(orders, grid)
	res := auction.Clear(curves, s.lastPrice)
	alloc := auction.Allocate(orders, res, day)

	volume := alloc.Qty.Float64()
	state := domain.MarketState{
		Day:       day,
		Price:     res.Price,
		Volume:    volume,
		BuyDepth:  curves.TotalBuy(),
		SellDepth: curves.TotalSell(),
		Imbalance: curves.Imbalance(),
		Phase:     phase,
	}
	if _, none := s.source.(sentiment.None); !none {
		state.SentimentValue = domain.Float64Ptr(sent)
	}

	// Nothing is settled until the round is durable.
	if err := s.journalRound(ctx, state, alloc.Qty, len(orders), rejected, len(alloc.Fills)); err != nil {
		return domain.MarketState{}, err
	}
	s.settler.Apply(alloc, day)

	if s.manip != nil {
		s.manip.ApplyFills(alloc.Fills)
		if from, to, changed := s.manip.Transition(day, res.Price, volume); changed {
			s.logger.Info("Manipulator phase changed",
				slog.Int("day", day),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
				slog.Float64("price", res.Price))
			if err := s.journalPhase(ctx, state, &phaseChange{from: from, to: to}); err != nil {
				s.halted = err
				s.logger.Error("JOURNAL_WRITE_FAILED", slog.Int("day", day), slog.Any("error", err))
				return domain.MarketState{}, err
			}
		}
	}

	s.mu.Lock()
	s.history = append(s.history, state)
	s.curves[day] = curves
	if n := s.cfg.CurveRetention; n > 0 {
		delete(s.curves, day-n)
	}
	s.mu.Unlock()

	s.day = day
	s.lastPrice = res.Price

	s.logger.Debug("Round cleared",
		slog.Int("day", day),
		slog.Float64("price", res.Price),
		slog.Float64("volume", volume),
		slog.Int("orders", len(orders)),
		slog.Int("rejected", rejected))

	if s.onStateUpdate != nil {
		s.onStateUpdate(state)
	}
	if s.snapshots != nil && s.snapshotEvery > 0 && day%s.snapshotEvery == 0 {
		if err := s.snapshots.Save(s.snapshot(state)); err != nil {
			s.logger.Warn("Snapshot failed", slog.Int("day", day), slog.Any("error", err))
		}
	}
	return state, nil
}

// collectOrders asks every participant for quotes and validates them.
// Quotes are gathered in participant order regardless of scheduling.
func (s *Simulation) collectOrders(ctx context.Context, view trader.MarketView) ([]domain.Order, int, error) {
	participants := s.traders
	if len(s.extra) > 0 {
		participants = append(append([]trader.Trader(nil), s.traders...), s.extra...)
	}
	slots := make([]slot, len(participants))

	if s.cfg.ParallelGeneration {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, t := range participants {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				q, ok := t.MaybeGenerateOrder(view)
				slots[i] = slot{quote: q, ok: ok}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
	} else {
		for i, t := range participants {
			q, ok := t.MaybeGenerateOrder(view)
			slots[i] = slot{quote: q, ok: ok}
		}
	}

	orders := make([]domain.Order, 0, len(slots)+4)
	rejected := 0
	add := func(id string, q trader.Quote) {
		o, err := domain.NewOrder(id, q.Side, q.LimitPrice, q.Volume)
		if err != nil {
			rejected++
			s.logger.Warn("ORDER_REJECTED",
				slog.Int("day", view.Day),
				slog.String("trader", id),
				slog.Float64("price", q.LimitPrice),
				slog.Float64("volume", q.Volume),
				slog.Any("error", err))
			return
		}
		orders = append(orders, o)
	}
	for i, sl := range slots {
		if sl.ok {
			add(participants[i].ID(), sl.quote)
		}
	}
	if s.manip != nil {
		for _, q := range s.manip.GenerateOrders(view) {
			add(s.manip.ID(), q)
		}
	}
	return orders, rejected, nil
}

// RunID identifies the run in the journal.
func (s *Simulation) RunID() string { return s.runID }

// Day is the last completed round, 0 before the first.
func (s *Simulation) Day() int { return s.day }

// LastPrice is the most recent clearing price.
func (s *Simulation) LastPrice() float64 { return s.lastPrice }

// Config returns the configuration the run was built with.
func (s *Simulation) Config() Config { return s.cfg }

// Manipulator returns nil when the run has none.
func (s *Simulation) Manipulator() *manipulation.Manipulator { return s.manip }

// Traders returns the configured population in id order.
func (s *Simulation) Traders() []trader.Trader { return s.traders }

// Settler exposes the settled fill history.
func (s *Simulation) Settler() *execution.Settler { return s.settler }

// Accounts returns copies of every account, sorted by id.
func (s *Simulation) Accounts() []domain.Account { return s.book.Snapshot() }

// History returns a copy of all states so far.
func (s *Simulation) History() []domain.MarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MarketState, len(s.history))
	copy(out, s.history)
	return out
}

// OrderCurvesForDay returns the curves the auction of day t cleared against.
// Curves older than the retention window are not available.
func (s *Simulation) OrderCurvesForDay(t int) (domain.OrderCurves, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.curves[t]
	if !ok {
		return domain.OrderCurves{}, false
	}
	return c.Clone(), true
}

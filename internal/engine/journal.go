package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/event"
	"github.com/itrapnauskas/market-simulator/internal/manipulation"
	"github.com/itrapnauskas/market-simulator/internal/storage"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
)

type phaseChange struct {
	from, to manipulation.Phase
}

func now() quant.TimeStamp {
	return quant.TimeStamp(time.Now().UnixMicro())
}

func (s *Simulation) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// begin journals the run start once.
func (s *Simulation) begin(ctx context.Context) error {
	if s.started {
		return nil
	}

	raw, fp, err := Fingerprint(s.cfg)
	if err != nil {
		return err
	}
	s.logger.Info("Simulation started",
		slog.Int("traders", s.cfg.TraderCount),
		slog.String("wealth_mode", string(s.cfg.WealthMode)),
		slog.Uint64("seed", s.cfg.RandomSeed),
		slog.Bool("manipulator", s.manip != nil),
		slog.String("fingerprint", fp[:16]))

	if s.store == nil {
		s.started = true
		return nil
	}
	ev := &event.RunStartedEvent{
		BaseEvent:   event.BaseEvent{Seq: s.nextSeq(), Ts: now(), RunID: s.runID},
		Seed:        s.cfg.RandomSeed,
		Fingerprint: fp,
		Config:      raw,
		TraderCount: s.cfg.TraderCount,
	}
	if s.manip != nil {
		ev.Manipulator = s.manip.Strategy()
	}
	if err := s.store.BeginRun(ctx, ev); err != nil {
		s.seq--
		return fmt.Errorf("failed to journal run start: %w", err)
	}
	s.started = true
	return nil
}

// journalRound writes the cleared round before it is settled.
// A failed write gives back its sequence number so a retry stays contiguous.
func (s *Simulation) journalRound(ctx context.Context, state domain.MarketState, qty quant.QtySats, orders, rejected, fills int) error {
	if s.store == nil {
		return nil
	}
	ev := event.AcquireRoundClearedEvent()
	defer event.ReleaseRoundClearedEvent(ev)
	ev.BaseEvent = event.BaseEvent{Seq: s.nextSeq(), Ts: now(), RunID: s.runID}
	ev.State = state
	ev.Qty = qty
	ev.Orders = orders
	ev.Rejected = rejected
	ev.Fills = fills
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		s.seq--
		return fmt.Errorf("failed to journal day %d: %w", state.Day, err)
	}
	return nil
}

func (s *Simulation) journalPhase(ctx context.Context, state domain.MarketState, change *phaseChange) error {
	if s.store == nil {
		return nil
	}
	pc := &event.PhaseChangedEvent{
		BaseEvent: event.BaseEvent{Seq: s.nextSeq(), Ts: now(), RunID: s.runID},
		Day:       state.Day,
		From:      string(change.from),
		To:        string(change.to),
		Price:     state.Price,
	}
	if err := s.store.SaveEvent(ctx, pc); err != nil {
		return fmt.Errorf("failed to journal phase change on day %d: %w", state.Day, err)
	}
	return nil
}

func (s *Simulation) finish(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ev := &event.RunFinishedEvent{
		BaseEvent:  event.BaseEvent{Seq: s.nextSeq(), Ts: now(), RunID: s.runID},
		Days:       s.day,
		FinalPrice: s.lastPrice,
	}
	if err := s.store.FinishRun(ctx, ev); err != nil {
		return fmt.Errorf("failed to journal run finish: %w", err)
	}
	return nil
}

func (s *Simulation) snapshot(last domain.MarketState) *storage.Snapshot {
	var ms *storage.ManipulatorState
	if s.manip != nil {
		st := s.manip.Status()
		ms = &storage.ManipulatorState{
			Strategy:      s.manip.Strategy(),
			Phase:         string(st.Phase),
			EnteredAt:     st.EnteredAt,
			RoundsInPhase: st.RoundsInPhase,
			Cycle:         st.Cycle,
			Position:      s.manip.Position(),
			Equity:        s.manip.Equity(last.Price).String(),
		}
	}
	return storage.CreateSnapshot(s.runID, last, s.book.Snapshot(), ms)
}

// DumpState writes the current state for post-mortem analysis.
// It needs a snapshot directory; without one it only logs.
func (s *Simulation) DumpState(name, reason string) {
	if s.snapshots == nil {
		s.logger.Warn("No snapshot directory configured, state not dumped")
		return
	}
	last := domain.MarketState{Day: s.day, Price: s.lastPrice}
	s.mu.RLock()
	if n := len(s.history); n > 0 {
		last = s.history[n-1]
	}
	s.mu.RUnlock()

	snap := s.snapshot(last)
	snap.Reason = reason
	path, err := s.snapshots.SaveDump(name, snap)
	if err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
		return
	}
	s.logger.Info("Dumped internal state", slog.String("file", path))
}

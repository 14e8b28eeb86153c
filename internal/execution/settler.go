package execution

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/itrapnauskas/market-simulator/internal/auction"
	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// Report summarizes one settled round.
type Report struct {
	Day      int
	Price    float64
	Qty      quant.QtySats
	Notional decimal.Decimal
	Fills    int
}

// Settler settles allocations against a domain.Book and keeps the fill history.
type Settler struct {
	book   *domain.Book
	fills  []domain.Fill
	logger *slog.Logger
	mu     sync.Mutex
}

var _ Settlement = (*Settler)(nil)

// NewSettler creates a settler over book. A nil logger uses slog.Default().
func NewSettler(book *domain.Book, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{book: book, logger: logger}
}

// Apply debits buyers and credits sellers at the clearing price.
// Buy cash equals sell cash exactly, so total cash and shares are unchanged.
func (s *Settler) Apply(alloc auction.Allocation, day int) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := Report{Day: day, Price: alloc.Price, Qty: alloc.Qty, Notional: decimal.Zero}
	if alloc.Qty == 0 {
		return rep
	}
	if b, sl := alloc.BuyQty(), alloc.SellQty(); b != alloc.Qty || sl != alloc.Qty {
		s.logger.Error("FEASIBILITY_VIOLATION",
			slog.Int("day", day),
			slog.Int64("buy_sats", int64(b)),
			slog.Int64("sell_sats", int64(sl)),
			slog.Int64("executed_sats", int64(alloc.Qty)))
		panic(fmt.Sprintf("FEASIBILITY_VIOLATION: day=%d buy=%s sell=%s executed=%s", day, b, sl, alloc.Qty))
	}

	px := quant.PriceDecimal(alloc.Price)
	for _, f := range alloc.Fills {
		acct := s.book.Get(f.TraderID)
		if acct == nil {
			panic(fmt.Sprintf("FEASIBILITY_VIOLATION: day=%d unknown account %s", day, f.TraderID))
		}
		cash := px.Mul(f.Qty.Decimal())
		s.settle(acct, f, cash, day)
		if f.Side == domain.SideBuy {
			rep.Notional = rep.Notional.Add(cash)
		}
		rep.Fills++
	}
	s.fills = append(s.fills, alloc.Fills...)

	s.logger.Debug("Round settled",
		slog.Int("day", day),
		slog.Float64("price", alloc.Price),
		slog.String("qty", alloc.Qty.String()),
		slog.Int("fills", rep.Fills))
	return rep
}

func (s *Settler) settle(acct *domain.Account, f domain.Fill, cash decimal.Decimal, day int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("FEASIBILITY_VIOLATION",
				slog.Int("day", day),
				slog.String("trader", f.TraderID),
				slog.String("side", string(f.Side)),
				slog.String("qty", f.Qty.String()),
				slog.String("cash", acct.Cash.String()),
				slog.String("holdings", acct.Holdings.String()))
			panic(fmt.Sprintf("FEASIBILITY_VIOLATION: day=%d trader=%s: %v", day, f.TraderID, r))
		}
	}()
	if f.Side == domain.SideBuy {
		acct.Debit(cash)
		acct.AddShares(f.Qty)
	} else {
		acct.RemoveShares(f.Qty)
		acct.Credit(cash)
	}
	acct.VerifyInvariant()
}

// Fills returns all settled fills.
func (s *Settler) Fills() []domain.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.Fill, len(s.fills))
	copy(result, s.fills)
	return result
}

// FillsFor returns the settled fills of one participant.
func (s *Settler) FillsFor(traderID string) []domain.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Fill
	for _, f := range s.fills {
		if f.TraderID == traderID {
			out = append(out, f)
		}
	}
	return out
}

// Balance returns a copy of one account.
func (s *Settler) Balance(traderID string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.book.Get(traderID)
	if a == nil {
		return domain.Account{}, false
	}
	return *a, true
}

// TotalEquity marks every account to price.
func (s *Settler) TotalEquity(price float64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.CalculateTotalEquity(price)
}

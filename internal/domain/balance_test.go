package domain

import (
	"testing"

	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

func TestAccount_CreditDebit(t *testing.T) {
	a := NewAccount("trader_0001", decimal.Zero, 0, true)

	a.Credit(decimal.NewFromInt(100))
	if !a.Cash.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100, got %s", a.Cash)
	}

	a.Debit(decimal.NewFromInt(30))
	if !a.Cash.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected 70, got %s", a.Cash)
	}

	a.VerifyInvariant()
}

func TestAccount_Shares(t *testing.T) {
	a := NewAccount("trader_0002", decimal.Zero, 10*quant.QtyScale, true)

	a.RemoveShares(4 * quant.QtyScale)
	if a.Holdings != 6*quant.QtyScale {
		t.Errorf("expected 6 shares, got %s", a.Holdings)
	}

	a.AddShares(quant.QtyScale / 2)
	if a.Holdings != 650000000 {
		t.Errorf("expected 6.5 shares, got %s", a.Holdings)
	}

	a.VerifyInvariant()
}

func TestAccount_DebitPanic_Insufficient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for insufficient cash")
		}
	}()

	a := NewAccount("trader_0003", decimal.NewFromInt(50), 0, true)
	a.Debit(decimal.NewFromInt(100))
}

func TestAccount_RemoveSharesPanic_Short(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for short sale")
		}
	}()

	a := NewAccount("trader_0004", decimal.Zero, 1, true)
	a.RemoveShares(2)
}

func TestAccount_UnlimitedAllowsNegative(t *testing.T) {
	a := NewAccount("trader_0005", decimal.Zero, 0, false)
	a.Debit(decimal.NewFromInt(10))
	a.RemoveShares(quant.QtyScale)

	if !a.Cash.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("expected -10 cash, got %s", a.Cash)
	}
	if a.Holdings != -quant.QtyScale {
		t.Errorf("expected -1 share, got %s", a.Holdings)
	}
	a.VerifyInvariant()
}

func TestAccount_InvariantPanic_NegativeCash(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for negative cash")
		}
	}()

	a := &Account{ID: "x", Cash: decimal.NewFromInt(-1), Limited: true}
	a.VerifyInvariant()
}

func TestAccount_Equity(t *testing.T) {
	a := NewAccount("m", decimal.NewFromInt(1000), 5*quant.QtyScale, true)
	got := a.Equity(101.5)
	if !got.Equal(decimal.RequireFromString("1507.5")) {
		t.Errorf("expected 1507.5, got %s", got)
	}
}

func TestBook(t *testing.T) {
	b := NewBook()
	b.Add(NewAccount("b", decimal.NewFromInt(1000), quant.QtyScale, true))
	b.Add(NewAccount("a", decimal.NewFromInt(500), 2*quant.QtyScale, true))

	b.VerifyAll()

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(snap))
	}
	if snap[0].ID != "a" {
		t.Errorf("expected snapshot sorted by id, got %s first", snap[0].ID)
	}

	if !b.TotalCash().Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expected total cash 1500, got %s", b.TotalCash())
	}
	if b.TotalHoldings() != 3*quant.QtyScale {
		t.Errorf("expected 3 shares, got %s", b.TotalHoldings())
	}
	if !b.CalculateTotalEquity(10).Equal(decimal.NewFromInt(1530)) {
		t.Errorf("expected equity 1530, got %s", b.CalculateTotalEquity(10))
	}
}

func TestBook_DuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for duplicate id")
		}
	}()

	b := NewBook()
	b.Add(NewAccount("a", decimal.Zero, 0, true))
	b.Add(NewAccount("a", decimal.Zero, 0, true))
}

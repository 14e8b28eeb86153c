package domain

import (
	"fmt"
	"sort"

	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
	"github.com/shopspring/decimal"
)

// Account is a participant's cash and share ledger.
// Limited accounts must never go negative; unlimited accounts only record net flows.
type Account struct {
	ID       string          `json:"id"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings quant.QtySats   `json:"holdings,string"`
	Limited  bool            `json:"limited"`
}

// NewAccount creates an account with an initial endowment.
func NewAccount(id string, cash decimal.Decimal, holdings quant.QtySats, limited bool) *Account {
	return &Account{ID: id, Cash: cash, Holdings: holdings, Limited: limited}
}

// Credit adds cash.
func (a *Account) Credit(amount decimal.Decimal) {
	if amount.IsNegative() {
		panic(fmt.Sprintf("ACCOUNT_NEGATIVE_CREDIT: id=%s amount=%s", a.ID, amount))
	}
	a.Cash = a.Cash.Add(amount)
}

// Debit removes cash. Panics when a limited account would be overdrawn.
func (a *Account) Debit(amount decimal.Decimal) {
	if a.Limited {
		a.Cash = safe.DebitNonNegative(a.Cash, amount)
		return
	}
	a.Cash = a.Cash.Sub(amount)
}

// AddShares credits holdings.
func (a *Account) AddShares(q quant.QtySats) {
	a.Holdings = quant.QtySats(safe.SafeAdd(int64(a.Holdings), int64(q)))
}

// RemoveShares debits holdings. Panics when a limited account would go short.
func (a *Account) RemoveShares(q quant.QtySats) {
	if a.Limited {
		a.Holdings = quant.QtySats(safe.SubNonNegative(int64(a.Holdings), int64(q)))
		return
	}
	a.Holdings = quant.QtySats(safe.SafeSub(int64(a.Holdings), int64(q)))
}

// VerifyInvariant panics if a limited account holds negative cash or shares.
func (a *Account) VerifyInvariant() {
	if !a.Limited {
		return
	}
	if a.Cash.IsNegative() {
		panic(fmt.Sprintf("ACCOUNT_INVARIANT_VIOLATION: id=%s cash=%s", a.ID, a.Cash))
	}
	if a.Holdings < 0 {
		panic(fmt.Sprintf("ACCOUNT_INVARIANT_VIOLATION: id=%s holdings=%d", a.ID, a.Holdings))
	}
}

// Wealth returns cash as a float for order sizing and reporting.
func (a *Account) Wealth() float64 {
	return a.Cash.InexactFloat64()
}

// Equity marks holdings at price and adds cash.
func (a *Account) Equity(price float64) decimal.Decimal {
	return a.Cash.Add(quant.PriceDecimal(price).Mul(a.Holdings.Decimal()))
}

// Book keeps every account of a run, in insertion order.
type Book struct {
	accounts map[string]*Account
	order    []string
}

// NewBook creates an empty account book.
func NewBook() *Book {
	return &Book{accounts: make(map[string]*Account)}
}

// Add registers an account. Panics on a duplicate id.
func (b *Book) Add(a *Account) {
	if _, ok := b.accounts[a.ID]; ok {
		panic(fmt.Sprintf("ACCOUNT_DUPLICATE: id=%s", a.ID))
	}
	b.accounts[a.ID] = a
	b.order = append(b.order, a.ID)
}

// Get returns the account for id, or nil.
func (b *Book) Get(id string) *Account {
	return b.accounts[id]
}

// Len returns the number of accounts.
func (b *Book) Len() int {
	return len(b.order)
}

// VerifyAll checks every account's invariant.
func (b *Book) VerifyAll() {
	for _, id := range b.order {
		b.accounts[id].VerifyInvariant()
	}
}

// Snapshot returns copies of all accounts sorted by id.
func (b *Book) Snapshot() []Account {
	out := make([]Account, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.accounts[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TotalCash sums cash across accounts.
func (b *Book) TotalCash() decimal.Decimal {
	total := decimal.Zero
	for _, id := range b.order {
		total = total.Add(b.accounts[id].Cash)
	}
	return total
}

// TotalHoldings sums shares across accounts.
func (b *Book) TotalHoldings() quant.QtySats {
	var total int64
	for _, id := range b.order {
		total = safe.SafeAdd(total, int64(b.accounts[id].Holdings))
	}
	return quant.QtySats(total)
}

// CalculateTotalEquity marks the whole book at price.
func (b *Book) CalculateTotalEquity(price float64) decimal.Decimal {
	total := decimal.Zero
	for _, id := range b.order {
		total = total.Add(b.accounts[id].Equity(price))
	}
	return total
}

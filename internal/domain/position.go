package domain

import (
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

// Position tracks cost basis for a long-only inventory.
type Position struct {
	QtySats       quant.QtySats   `json:"qty,string"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

// IsLong checks if the position holds inventory.
func (p *Position) IsLong() bool {
	return p.QtySats > 0
}

// IsFlat checks if the position is empty.
func (p *Position) IsFlat() bool {
	return p.QtySats == 0
}

// ApplyBuy adds shares at price and re-weights the average entry.
func (p *Position) ApplyBuy(qty quant.QtySats, price decimal.Decimal) {
	if qty <= 0 {
		return
	}
	cost := p.AvgEntryPrice.Mul(p.QtySats.Decimal()).Add(price.Mul(qty.Decimal()))
	p.QtySats += qty
	p.AvgEntryPrice = cost.Div(p.QtySats.Decimal())
}

// ApplySell removes shares at price and books the realized profit.
// Selling more than held only realizes PnL on the held part.
func (p *Position) ApplySell(qty quant.QtySats, price decimal.Decimal) {
	if qty <= 0 {
		return
	}
	if qty > p.QtySats {
		qty = p.QtySats
	}
	p.RealizedPnL = p.RealizedPnL.Add(price.Sub(p.AvgEntryPrice).Mul(qty.Decimal()))
	p.QtySats -= qty
	if p.QtySats == 0 {
		p.AvgEntryPrice = decimal.Zero
	}
}

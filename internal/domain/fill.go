package domain

import "github.com/itrapnauskas/market-simulator/pkg/quant"

// Fill is the executed part of one order at the round's clearing price.
type Fill struct {
	Day      int           `json:"day"`
	TraderID string        `json:"trader_id"`
	Side     Side          `json:"side"`
	Price    float64       `json:"price"`
	Qty      quant.QtySats `json:"qty,string"`
}

// Volume returns the filled size in shares.
func (f Fill) Volume() float64 {
	return f.Qty.Float64()
}

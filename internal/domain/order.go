package domain

import (
	"errors"
	"fmt"

	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/itrapnauskas/market-simulator/pkg/safe"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ErrInvalidOrder is returned for orders with a non-positive or non-finite price or volume.
var ErrInvalidOrder = errors.New("invalid order")

// Order is a single limit order submitted to one auction round.
// Orders are immutable; volume is held in QtySats so fills split exactly.
type Order struct {
	TraderID   string
	Side       Side
	LimitPrice float64
	Qty        quant.QtySats
}

// NewOrder validates and snaps an order. The volume is truncated to 1e-8 shares.
func NewOrder(traderID string, side Side, limitPrice, volume float64) (Order, error) {
	if side != SideBuy && side != SideSell {
		return Order{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}
	if !safe.Finite(limitPrice) || limitPrice <= 0 {
		return Order{}, fmt.Errorf("%w: price %v", ErrInvalidOrder, limitPrice)
	}
	if !safe.Finite(volume) || volume <= 0 {
		return Order{}, fmt.Errorf("%w: volume %v", ErrInvalidOrder, volume)
	}
	qty := quant.FloorQtySats(volume)
	if qty <= 0 {
		return Order{}, fmt.Errorf("%w: volume %v below one unit", ErrInvalidOrder, volume)
	}
	return Order{TraderID: traderID, Side: side, LimitPrice: limitPrice, Qty: qty}, nil
}

// NewOrderQty builds an order from an already snapped quantity.
func NewOrderQty(traderID string, side Side, limitPrice float64, qty quant.QtySats) (Order, error) {
	if qty <= 0 {
		return Order{}, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, qty)
	}
	o, err := NewOrder(traderID, side, limitPrice, 1)
	if err != nil {
		return Order{}, err
	}
	o.Qty = qty
	return o, nil
}

// Volume returns the order size in shares.
func (o Order) Volume() float64 {
	return o.Qty.Float64()
}

// IsBuy reports whether the order is on the bid side.
func (o Order) IsBuy() bool {
	return o.Side == SideBuy
}

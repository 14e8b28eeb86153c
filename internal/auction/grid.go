// Package auction implements the batch auction: price grid construction,
// curve aggregation, equilibrium clearing and fill allocation.
package auction

import (
	"math"

	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// DefaultMaxGridPoints bounds the grid so a wild order cannot blow up memory.
const DefaultMaxGridPoints = 20000

// BuildGrid returns a strictly increasing, tick-aligned grid covering every
// limit price in the batch and the previous price, padded by one step each side.
// When the span needs more than maxPoints points the step is widened to a
// multiple of tick.
func BuildGrid(orders []domain.Order, previousPrice, tick float64, maxPoints int) []float64 {
	if tick <= 0 {
		tick = 0.01
	}
	if maxPoints < 2 {
		maxPoints = DefaultMaxGridPoints
	}

	lo, hi := previousPrice, previousPrice
	for _, o := range orders {
		lo = math.Min(lo, o.LimitPrice)
		hi = math.Max(hi, o.LimitPrice)
	}

	first := int64(math.Floor(lo/tick)) - 1
	if first < 1 {
		first = 1
	}
	last := int64(math.Ceil(hi/tick)) + 1
	if last <= first {
		last = first + 1
	}

	stride := int64(1)
	if span := last - first + 1; span > int64(maxPoints) {
		stride = (span + int64(maxPoints) - 1) / int64(maxPoints)
		first = (first / stride) * stride
		if first < stride {
			first = stride
		}
	}

	grid := make([]float64, 0, (last-first)/stride+2)
	for k := first; ; k += stride {
		grid = append(grid, float64(k)*tick)
		if k >= last {
			break
		}
	}
	return grid
}

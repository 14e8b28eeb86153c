// Package execution settles cleared auction allocations against the account book.
package execution

import "github.com/itrapnauskas/market-simulator/internal/auction"

// Settlement applies one round's allocation to participant balances.
type Settlement interface {
	// Apply moves cash and shares for every fill. Implementations panic on
	// any balance that would violate its account limits.
	Apply(alloc auction.Allocation, day int) Report
}

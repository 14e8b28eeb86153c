package stream

import "sync"

// breaker trips after threshold consecutive delivery failures.
// A tripped client is disconnected rather than retried.
type breaker struct {
	mu        sync.Mutex
	threshold int
	failures  int
	open      bool
}

func newBreaker(threshold int) *breaker {
	return &breaker{threshold: max(threshold, 1)}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		b.failures = 0
	}
}

// failure records a failure and reports whether the breaker is now open.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.open = true
	}
	return b.open
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

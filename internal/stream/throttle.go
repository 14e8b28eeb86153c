package stream

import (
	"sync"
	"time"
)

// throttle is a token bucket that drops instead of waiting, so a fast
// simulation never blocks on its viewers.
type throttle struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
}

func newThrottle(burst int, perSecond float64) *throttle {
	if burst < 1 {
		burst = 1
	}
	t := &throttle{
		tokens:    float64(burst),
		burst:     float64(burst),
		perSecond: perSecond,
		now:       time.Now,
	}
	t.lastRefill = t.now()
	return t
}

// allow takes a token if one is available.
func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.tokens = min(t.burst, t.tokens+now.Sub(t.lastRefill).Seconds()*t.perSecond)
	t.lastRefill = now

	if t.tokens < 1 {
		return false
	}
	t.tokens--
	return true
}

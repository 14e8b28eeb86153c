package stream

import "time"

// Backoff is a capped exponential reconnect delay.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at one second and caps at one minute.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Minute}
}

// Delay returns Base * 2^retry capped at Max. Negative retries give Base.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		return b.Base
	}
	// 2^30 seconds is far past any sane cap.
	if retry > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<retry)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

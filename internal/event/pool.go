package event

import "sync"

var roundPool = sync.Pool{
	New: func() any { return new(RoundClearedEvent) },
}

// AcquireRoundClearedEvent returns a zeroed event from the pool.
func AcquireRoundClearedEvent() *RoundClearedEvent {
	return roundPool.Get().(*RoundClearedEvent)
}

// ReleaseRoundClearedEvent resets ev and returns it to the pool.
// The caller must not retain ev or any pointer taken from its State.
func ReleaseRoundClearedEvent(ev *RoundClearedEvent) {
	*ev = RoundClearedEvent{}
	roundPool.Put(ev)
}

// Warmup pre-fills the round event pool so the first rounds of a run don't allocate.
func Warmup(n int) {
	evs := make([]*RoundClearedEvent, n)
	for i := range evs {
		evs[i] = AcquireRoundClearedEvent()
	}
	for _, ev := range evs {
		ReleaseRoundClearedEvent(ev)
	}
}

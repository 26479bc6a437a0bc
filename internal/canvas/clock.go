package canvas

import "sync/atomic"

// MaxCandidate caps client-supplied clock candidates at the largest
// integer a JSON number carries exactly in browsers (2^53-1). Capping keeps
// a hostile candidate from pushing the clock toward int64 overflow.
const MaxCandidate int64 = 1<<53 - 1

// Clock is the per-room Lamport-style counter that totally orders writes
// to the same cell.
//
// Advance never fails and never goes backwards, whatever the candidate.
// A far-future candidate is accepted and becomes the new floor; it can
// make the sender's later writes win ties but cannot roll back earlier
// writes.
//
// Thread-safety: Clock uses atomic operations so Current can be read from
// outside the room goroutine. Advance and Observe are only called from the
// owning room goroutine.
type Clock struct {
	value atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific value.
// Used when rehydrating a room from durable storage.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.value.Store(start)
	return c
}

// Advance returns max(current+1, candidate+1) and stores it.
// Candidates above MaxCandidate are treated as MaxCandidate.
func (c *Clock) Advance(candidate int64) int64 {
	if candidate > MaxCandidate {
		candidate = MaxCandidate
	}
	for {
		cur := c.value.Load()
		next := cur + 1
		if candidate > cur {
			next = candidate + 1
		}
		if c.value.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Observe raises the clock to ts if it is currently lower. It never
// increments past ts; used when merging already-stamped records.
func (c *Clock) Observe(ts int64) {
	for {
		cur := c.value.Load()
		if ts <= cur || c.value.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Current returns the current value without advancing.
func (c *Clock) Current() int64 {
	return c.value.Load()
}

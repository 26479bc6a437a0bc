package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/voxelroom/internal/clock"
)

// FakeClock is a manually advanced wall clock for tests.
//
// Time only moves when Advance is called. AfterFunc callbacks run
// synchronously inside Advance, in deadline order, so debounce and idle
// timers fire at deterministic points in a test.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Callbacks run without the mutex held and may schedule new timers.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
}

// FakeEpoch is the default start time of a FakeClock.
var FakeEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock creates a fake clock starting at FakeEpoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: FakeEpoch}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has been advanced by d.
// If d <= 0, f runs immediately on the calling goroutine.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	if d <= 0 {
		f()
		return clock.NewTimer(func() bool { return false })
	}

	c.mu.Lock()
	c.seq++
	t := &fakeTimer{deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	return clock.NewTimer(func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, pending := range c.timers {
			if pending == t {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				t.stopped = true
				return true
			}
		}
		return false
	})
}

// Advance moves the clock forward by d and fires every timer whose
// deadline has been reached, including timers scheduled by callbacks
// that fall inside the advanced window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue()
		if t == nil {
			return
		}
		t.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// popDue removes and returns the earliest due timer, or nil.
func (c *FakeClock) popDue() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})

	if len(c.timers) == 0 || c.timers[0].deadline.After(c.now) {
		return nil
	}
	t := c.timers[0]
	c.timers = c.timers[1:]
	return t
}

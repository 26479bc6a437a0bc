// Package clock abstracts wall-clock time so rate limiting, debounced
// persistence and idle eviction can be driven deterministically in tests.
//
// Logical time (the per-room write clock) lives in package canvas. This
// package is only about elapsed real time.
package clock

import "time"

// Clock is the subset of the time package the coordinator depends on.
// Production code uses Real(); tests inject testutil.FakeClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f in its own goroutine (real) or
	// synchronously during Advance (fake). The returned Timer can cancel
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer represents a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// NewTimer wraps a stop function. Used by Clock implementations.
func NewTimer(stop func() bool) *Timer {
	return &Timer{stopFunc: stop}
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return NewTimer(t.Stop)
}

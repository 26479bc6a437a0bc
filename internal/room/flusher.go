package room

import (
	"sync"
	"time"

	"github.com/roach88/voxelroom/internal/clock"
)

// DefaultFlushDelay is the quiescence period before state is persisted.
const DefaultFlushDelay = 500 * time.Millisecond

// Flusher debounces persistence requests.
//
// Every Schedule call cancels the pending timer and starts a new one, so
// fire runs once per burst, delay after the last write. fire runs on the
// timer's goroutine and must only hand off work (the room enqueues a flush
// event).
type Flusher struct {
	clock clock.Clock
	delay time.Duration
	fire  func()

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
}

// NewFlusher creates a debouncer calling fire after delay of quiescence.
func NewFlusher(clk clock.Clock, delay time.Duration, fire func()) *Flusher {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &Flusher{clock: clk, delay: delay, fire: fire}
}

// Schedule (re)starts the debounce timer.
func (f *Flusher) Schedule() {
	f.mu.Lock()
	f.timer.Stop()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	t := f.clock.AfterFunc(f.delay, func() {
		f.mu.Lock()
		if gen != f.gen {
			// Superseded by a later Schedule or Stop.
			f.mu.Unlock()
			return
		}
		f.gen++
		f.timer = nil
		f.mu.Unlock()
		f.fire()
	})

	f.mu.Lock()
	if gen == f.gen {
		f.timer = t
	}
	f.mu.Unlock()
}

// Pending reports whether a flush is scheduled but has not fired.
func (f *Flusher) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}

// Stop cancels any pending flush and reports whether one was pending.
func (f *Flusher) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	t := f.timer
	f.timer = nil
	return t.Stop()
}

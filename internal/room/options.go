package room

import (
	"log/slog"
	"time"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/clock"
)

// DefaultMaxBatch caps the number of operations in one set frame.
const DefaultMaxBatch = 128

// DefaultPersistTimeout bounds one durable write.
const DefaultPersistTimeout = 10 * time.Second

// Limits groups the tunable room parameters.
type Limits struct {
	MaxBatch       int
	BucketCapacity int
	RefillInterval time.Duration
	FlushDelay     time.Duration
	PersistTimeout time.Duration
}

// DefaultLimits returns the production parameters.
func DefaultLimits() Limits {
	return Limits{
		MaxBatch:       DefaultMaxBatch,
		BucketCapacity: DefaultBucketCapacity,
		RefillInterval: DefaultRefillInterval,
		FlushDelay:     DefaultFlushDelay,
		PersistTimeout: DefaultPersistTimeout,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxBatch <= 0 {
		l.MaxBatch = d.MaxBatch
	}
	if l.BucketCapacity <= 0 {
		l.BucketCapacity = d.BucketCapacity
	}
	if l.RefillInterval <= 0 {
		l.RefillInterval = d.RefillInterval
	}
	if l.FlushDelay <= 0 {
		l.FlushDelay = d.FlushDelay
	}
	if l.PersistTimeout <= 0 {
		l.PersistTimeout = d.PersistTimeout
	}
	return l
}

// Option configures a Room.
type Option func(*Room)

// WithLimits overrides the batch cap, bucket and flush parameters. Zero
// fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(r *Room) {
		r.limits = l
	}
}

// WithClock injects the wall clock used for rate limiting, debouncing,
// pong timestamps and freeze times.
func WithClock(c clock.Clock) Option {
	return func(r *Room) {
		r.clock = c
	}
}

// WithIDGenerator sets how participant ids are assigned.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Room) {
		r.ids = g
	}
}

// WithLogger sets the logger. The room adds a "room" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(r *Room) {
		r.logger = l
	}
}

// WithState starts the room from a previously persisted state.
func WithState(s canvas.State) Option {
	return func(r *Room) {
		r.canvas = canvas.Restore(s)
		r.savedVersion = r.canvas.Version()
	}
}

// WithSyncTasks runs durable writes on the calling goroutine instead of a
// new one. Their completion is still delivered as an event, so a Drain
// after the triggering event observes the outcome deterministically.
func WithSyncTasks() Option {
	return func(r *Room) {
		r.runTask = func(task func()) { task() }
	}
}

// frozenAtStart marks a hydrated room whose export already exists.
func frozenAtStart() Option {
	return func(r *Room) {
		r.freeze = stateFrozen
	}
}

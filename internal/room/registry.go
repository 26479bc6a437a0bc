package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/voxelroom/internal/clock"
	"github.com/roach88/voxelroom/internal/store"
)

// DefaultIdleTimeout is how long a room with no references stays loaded.
const DefaultIdleTimeout = 30 * time.Second

// Registry owns the running rooms of one process, keyed by identifier.
//
// Acquire creates and hydrates a room on first use and starts its loop;
// Release drops a reference and, when the last one goes away, starts an
// idle timer. A room still unreferenced when the timer fires is evicted:
// its loop stops and makes a final flush. A room re-acquired while an
// evicted instance is still shutting down waits for that flush before
// hydrating.
type Registry struct {
	store  *store.Store
	idle   time.Duration
	clock  clock.Clock
	logger *slog.Logger
	opts   []Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	rooms    map[string]*entry
	draining map[string]*Room
	closed   bool
}

type entry struct {
	ready chan struct{} // closed once room or err is set
	room  *Room
	err   error
	refs  int
	timer *clock.Timer
	gen   uint64 // bumped on every reference change; stale idle timers compare it
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout sets how long an unreferenced room stays loaded.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(g *Registry) {
		g.idle = d
	}
}

// WithRegistryClock injects the clock driving idle eviction.
func WithRegistryClock(c clock.Clock) RegistryOption {
	return func(g *Registry) {
		g.clock = c
	}
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(g *Registry) {
		g.logger = l
	}
}

// WithRoomOptions sets options applied to every room the registry creates.
func WithRoomOptions(opts ...Option) RegistryOption {
	return func(g *Registry) {
		g.opts = append(g.opts, opts...)
	}
}

// NewRegistry creates a registry backed by st.
func NewRegistry(st *store.Store, opts ...RegistryOption) *Registry {
	g := &Registry{
		store:    st,
		idle:     DefaultIdleTimeout,
		clock:    clock.Real(),
		logger:   slog.Default(),
		rooms:    make(map[string]*entry),
		draining: make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.idle <= 0 {
		g.idle = DefaultIdleTimeout
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g
}

// Acquire returns the running room for id, creating it if needed, and adds
// a reference. Every successful Acquire must be paired with a Release.
func (g *Registry) Acquire(ctx context.Context, id string) (*Room, error) {
	if !store.ValidRoomID(id) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidRoom, id)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrRoomClosed
	}
	e, ok := g.rooms[id]
	if ok {
		e.refs++
		e.gen++
		e.timer.Stop()
		e.timer = nil
		g.mu.Unlock()
		return g.await(ctx, id, e)
	}

	e = &entry{ready: make(chan struct{}), refs: 1}
	g.rooms[id] = e
	prev := g.draining[id]
	g.mu.Unlock()

	g.hydrate(ctx, id, e, prev)
	return g.await(ctx, id, e)
}

// hydrate loads the room and starts its loop, or records the failure.
func (g *Registry) hydrate(ctx context.Context, id string, e *entry, prev *Room) {
	defer close(e.ready)

	if prev != nil {
		select {
		case <-prev.Done():
		case <-ctx.Done():
			e.err = ctx.Err()
			g.forget(id, e)
			return
		}
	}

	r, err := Open(ctx, id, g.store, g.opts...)
	if err != nil {
		e.err = err
		g.forget(id, e)
		return
	}
	e.room = r

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		e.room = nil
		e.err = ErrRoomClosed
		g.forget(id, e)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		r.Run(g.ctx)
	}()
	g.logger.Info("room created", "room", id, "store", g.store.Driver())
}

// await waits for hydration and undoes the reference on failure.
func (g *Registry) await(ctx context.Context, id string, e *entry) (*Room, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		g.Release(id)
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.room, nil
}

// forget removes a failed entry so the next Acquire retries.
func (g *Registry) forget(id string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[id] == e {
		delete(g.rooms, id)
	}
}

// Release drops one reference to id. The last release starts the idle
// timer.
func (g *Registry) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.rooms[id]
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	e.gen++
	if e.refs > 0 || g.closed {
		return
	}

	gen := e.gen
	e.timer = g.clock.AfterFunc(g.idle, func() { g.evict(id, e, gen) })
}

// evict stops an idle room if nothing re-acquired it meanwhile.
func (g *Registry) evict(id string, e *entry, gen uint64) {
	g.mu.Lock()
	if g.rooms[id] != e || e.refs > 0 || e.gen != gen {
		g.mu.Unlock()
		return
	}
	select {
	case <-e.ready:
	default:
		// Still hydrating; a reference will arrive or the failure cleans up.
		g.mu.Unlock()
		return
	}
	delete(g.rooms, id)
	r := e.room
	if r != nil {
		g.draining[id] = r
	}
	g.mu.Unlock()

	if r == nil {
		return
	}
	g.logger.Info("evicting idle room", "room", id)
	r.Stop()
	go func() {
		<-r.Done()
		g.mu.Lock()
		if g.draining[id] == r {
			delete(g.draining, id)
		}
		g.mu.Unlock()
	}()
}

// Lookup returns a loaded room without taking a reference.
func (g *Registry) Lookup(id string) (*Room, bool) {
	g.mu.Lock()
	e, ok := g.rooms[id]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.room, e.room != nil
	default:
		return nil, false
	}
}

// Len returns the number of loaded rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close stops every room and waits for their final flushes.
func (g *Registry) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for _, e := range g.rooms {
		e.timer.Stop()
	}
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	g.logger.Info("registry closed")
}

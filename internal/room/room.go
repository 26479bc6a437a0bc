package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/clock"
	"github.com/roach88/voxelroom/internal/proto"
	"github.com/roach88/voxelroom/internal/store"
)

// ConnID identifies a connection within a room.
type ConnID uint64

// Outbox is the outbound side of one connection.
type Outbox interface {
	// Deliver queues an encoded frame without blocking. Returning false
	// means the connection cannot keep up; the room then drops it.
	Deliver(frame []byte) bool

	// Close is called once the room has removed the connection. It must be
	// safe to call more than once.
	Close()
}

// Snapshot is a read-only view of a room, served by the admin surface.
type Snapshot struct {
	Room         string             `json:"room"`
	Version      int64              `json:"version"`
	Clock        int64              `json:"clock"`
	Frozen       bool               `json:"frozen"`
	Participants int                `json:"participants"`
	Voxels       canvas.PackedState `json:"voxels"`
}

// SnapshotResult is delivered by RequestSnapshot.
type SnapshotResult struct {
	Snapshot Snapshot
	Err      error
}

// FreezeResult is delivered by RequestFreeze.
type FreezeResult struct {
	Frozen store.Frozen
	Err    error
}

type freezeState int

const (
	stateLive freezeState = iota
	stateFreezing
	stateFrozen
)

// eventType distinguishes between event kinds.
type eventType int

const (
	eventJoin eventType = iota + 1
	eventFrame
	eventLeave
	eventSnapshot
	eventFreeze

	// Internal events: timers and off-loop task results.
	eventFlush
	eventPersisted
	eventFreezeDone
)

// event is the unit of work for the room loop.
type event struct {
	typ     eventType
	conn    ConnID
	out     Outbox
	frame   []byte
	version int64
	frozen  store.Frozen
	err     error

	snapshotReply chan SnapshotResult
	freezeReply   chan FreezeResult
}

type connection struct {
	id          ConnID
	out         Outbox
	participant string
	identified  bool
}

// Room is the single-writer coordinator for one room.
//
// Thread-safety model:
//   - Join, Receive, Leave, RequestSnapshot, RequestFreeze, Stop: safe from
//     any goroutine
//   - Run or Drain: called from exactly one goroutine at a time
//
// Every field below the queues is owned by that goroutine.
type Room struct {
	id      string
	store   *store.Store
	limits  Limits
	clock   clock.Clock
	ids     IDGenerator
	logger  *slog.Logger
	runTask func(func())

	queue    *eventQueue // client frames and admin requests
	internal *eventQueue // timer fires and task results, processed first
	tasks    sync.WaitGroup
	nextConn atomic.Uint64
	done     chan struct{}

	canvas       *canvas.Canvas
	limiter      *RateLimiter
	presence     *Presence
	flusher      *Flusher
	conns        map[ConnID]*connection
	freeze       freezeState
	persisting   bool
	flushPending bool
	savedVersion int64
	closing      bool
}

// New creates an empty room backed by st. The room does nothing until Run
// (or Drain) is called.
func New(id string, st *store.Store, opts ...Option) *Room {
	r := &Room{
		id:       id,
		store:    st,
		limits:   DefaultLimits(),
		clock:    clock.Real(),
		ids:      UUIDGenerator{},
		logger:   slog.Default(),
		runTask:  func(task func()) { go task() },
		queue:    newEventQueue(),
		internal: newEventQueue(),
		done:     make(chan struct{}),
		canvas:   canvas.New(),
		presence: NewPresence(),
		conns:    make(map[ConnID]*connection),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.limits = r.limits.withDefaults()
	r.logger = r.logger.With("room", id)
	r.limiter = NewRateLimiter(r.limits.BucketCapacity, r.limits.RefillInterval, r.clock)
	r.flusher = NewFlusher(r.clock, r.limits.FlushDelay, func() {
		r.internal.Enqueue(event{typ: eventFlush})
	})
	return r
}

// Open hydrates a room from st. A room that was never flushed starts
// empty; a room with a frozen export starts frozen.
func Open(ctx context.Context, id string, st *store.Store, opts ...Option) (*Room, error) {
	if !store.ValidRoomID(id) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidRoom, id)
	}

	all := slices.Clone(opts)
	state, err := st.LoadState(ctx, id)
	switch {
	case err == nil:
		all = append(all, WithState(state))
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("hydrate room %s: %w", id, err)
	}

	frozen, err := st.IsFrozen(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("hydrate room %s: %w", id, err)
	}
	if frozen {
		all = append(all, frozenAtStart())
	}

	return New(id, st, all...), nil
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Join registers a new connection. Frames go out through out once the
// connection is identified. Returns false if the room has stopped.
func (r *Room) Join(out Outbox) (ConnID, bool) {
	id := ConnID(r.nextConn.Add(1))
	if !r.queue.Enqueue(event{typ: eventJoin, conn: id, out: out}) {
		return 0, false
	}
	return id, true
}

// Receive submits one client frame. The room takes ownership of frame.
// Returns false if the room has stopped.
func (r *Room) Receive(conn ConnID, frame []byte) bool {
	return r.queue.Enqueue(event{typ: eventFrame, conn: conn, frame: frame})
}

// Leave reports that a connection's transport closed.
func (r *Room) Leave(conn ConnID) {
	r.queue.Enqueue(event{typ: eventLeave, conn: conn})
}

// RequestSnapshot asks the loop for a snapshot. The channel receives
// exactly one result.
func (r *Room) RequestSnapshot() <-chan SnapshotResult {
	reply := make(chan SnapshotResult, 1)
	if !r.queue.Enqueue(event{typ: eventSnapshot, snapshotReply: reply}) {
		reply <- SnapshotResult{Err: ErrRoomClosed}
	}
	return reply
}

// Snapshot returns the current state. Requires a running loop.
func (r *Room) Snapshot(ctx context.Context) (Snapshot, error) {
	select {
	case res := <-r.RequestSnapshot():
		return res.Snapshot, res.Err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// RequestFreeze asks the loop to freeze the room. The channel receives
// exactly one result once the export has been written or refused.
func (r *Room) RequestFreeze() <-chan FreezeResult {
	reply := make(chan FreezeResult, 1)
	if !r.queue.Enqueue(event{typ: eventFreeze, freezeReply: reply}) {
		reply <- FreezeResult{Err: ErrRoomClosed}
	}
	return reply
}

// Freeze writes the frozen export and makes the room read-only. Returns
// ErrRoomFrozen if an export already exists and ErrFreezeInProgress if
// another freeze is being written. On a storage failure the room stays
// live. Requires a running loop.
func (r *Room) Freeze(ctx context.Context) (store.Frozen, error) {
	select {
	case res := <-r.RequestFreeze():
		return res.Frozen, res.Err
	case <-ctx.Done():
		return store.Frozen{}, ctx.Err()
	}
}

// Stop closes the event queue. Run returns after shutting down.
func (r *Room) Stop() {
	r.queue.Close()
}

// Done is closed once the room has shut down and made its final flush.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called, then flushes unsaved
// state, closes every connection and returns.
func (r *Room) Run(ctx context.Context) error {
	r.logger.Info("room starting", "version", r.canvas.Version(), "frozen", r.freeze == stateFrozen)
	defer r.shutdown()

	for {
		if r.step() {
			continue
		}
		if r.queue.Drained() {
			r.logger.Info("room stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("room stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()
		case <-r.queue.Wait():
		case <-r.internal.Wait():
		}
	}
}

// Drain processes every queued event on the calling goroutine and returns
// once both queues are empty. If Stop was called, Drain also shuts the
// room down. Used by tests and the scenario harness instead of Run.
func (r *Room) Drain() {
	for r.step() {
	}
	if r.queue.Drained() {
		r.shutdown()
	}
}

// step processes one event, internal events first.
func (r *Room) step() bool {
	if ev, ok := r.internal.TryDequeue(); ok {
		r.process(ev)
		return true
	}
	if ev, ok := r.queue.TryDequeue(); ok {
		r.process(ev)
		return true
	}
	return false
}

// process routes an event to its handler.
func (r *Room) process(ev event) {
	switch ev.typ {
	case eventJoin:
		r.handleJoin(ev.conn, ev.out)
	case eventFrame:
		if c, ok := r.conns[ev.conn]; ok {
			r.handleFrame(c, ev.frame)
		}
	case eventLeave:
		r.drop(ev.conn, "left")
	case eventSnapshot:
		ev.snapshotReply <- SnapshotResult{Snapshot: r.snapshot()}
	case eventFreeze:
		r.handleFreeze(ev.freezeReply)
	case eventFlush:
		r.handleFlush()
	case eventPersisted:
		r.handlePersisted(ev.version, ev.err)
	case eventFreezeDone:
		r.handleFreezeDone(ev)
	default:
		r.logger.Error("unknown room event", "type", ev.typ)
	}
}

func (r *Room) handleJoin(id ConnID, out Outbox) {
	if r.closing {
		out.Close()
		return
	}
	r.conns[id] = &connection{id: id, out: out}
	r.limiter.Open(id)
	r.logger.Debug("connection joined", "conn", id, "connections", len(r.conns))
}

// drop removes a connection and tears down its bucket and presence.
func (r *Room) drop(id ConnID, why string) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.limiter.Close(id)
	c.out.Close()
	r.logger.Debug("connection closed", "conn", id, "participant", c.participant, "reason", why)

	if r.presence.Remove(id) {
		r.broadcastPresence()
	}
}

func (r *Room) handleFrame(c *connection, frame []byte) {
	msg, err := proto.DecodeClient(frame)
	if err != nil {
		r.reject(c, &RejectError{Reason: ReasonMalformed, Err: err})
		return
	}

	switch m := msg.(type) {
	case proto.Hello:
		r.handleHello(c, m)
	case proto.SetBatch:
		if err := r.handleSet(c, m); err != nil {
			r.reject(c, err)
		}
	case proto.Ping:
		r.send(c, proto.Pong{At: m.At, Now: r.clock.Now().UnixMilli()})
	case proto.PresenceUpdate:
		r.handlePresence(c, m)
	}
}

func (r *Room) handleHello(c *connection, m proto.Hello) {
	if c.identified {
		// Repeated handshake: identity is fixed for the connection's lifetime.
		r.send(c, r.welcome(c))
		return
	}

	id, ok := proto.NormalizeParticipantID(m.ParticipantID)
	if !ok {
		id = r.ids.NewParticipantID()
	}
	if m.ClientClock != nil {
		r.logger.Debug("client clock", "conn", c.id, "clientClock", int64(*m.ClientClock), "clock", r.canvas.ClockValue())
	}

	c.participant = id
	c.identified = true
	r.logger.Info("participant identified", "conn", c.id, "participant", id)

	if !r.send(c, r.welcome(c)) {
		return
	}
	r.presence.Update(c.id, id, nil)
	r.broadcastPresence()
}

func (r *Room) welcome(c *connection) proto.Welcome {
	return proto.Welcome{
		ParticipantID: c.participant,
		State:         r.canvas.Pack(),
		Version:       r.canvas.Version(),
	}
}

// handleSet validates, rate limits and resolves one batch. Refusals are
// returned as *RejectError and leave every piece of state untouched.
func (r *Room) handleSet(c *connection, batch proto.SetBatch) error {
	if !c.identified {
		return &RejectError{Reason: ReasonNotIdentified}
	}

	n := len(batch.Ops)
	if n > r.limits.MaxBatch || n > r.limiter.Capacity() {
		return &RejectError{Reason: ReasonBatchTooLarge, Err: fmt.Errorf("%d operations", n)}
	}

	switch r.freeze {
	case stateFrozen:
		return &RejectError{Reason: ReasonRoomFrozen}
	case stateFreezing:
		return &RejectError{Reason: ReasonRoomFreezing}
	}

	ops := make([]canvas.Op, 0, n)
	for i, w := range batch.Ops {
		op, err := w.Op()
		if err != nil {
			return &RejectError{Reason: ReasonMalformed, Err: fmt.Errorf("op %d: %w", i, err)}
		}
		op.Attribution = c.participant
		ops = append(ops, op)
	}

	if !r.limiter.Permit(c.id, n) {
		return &RejectError{Reason: ReasonRateLimited, RetryAfter: r.limiter.RetryAfter(c.id, n)}
	}

	applied, version := r.canvas.ApplyBatch(ops)
	if len(applied) == 0 {
		return nil
	}

	r.flusher.Schedule()
	r.broadcast(proto.Apply{Ops: proto.FromApplied(applied), Version: version})
	return nil
}

func (r *Room) handlePresence(c *connection, m proto.PresenceUpdate) {
	if !c.identified {
		return
	}
	if m.Cursor != nil && !m.Cursor.Valid() {
		return
	}
	r.presence.Update(c.id, c.participant, m.Cursor)
	r.broadcastPresence()
}

func (r *Room) reject(c *connection, err error) {
	var re *RejectError
	if !errors.As(err, &re) {
		re = &RejectError{Reason: ReasonMalformed, Err: err}
	}
	if re.Reason == ReasonRateLimited {
		r.logger.Warn("batch throttled", "conn", c.id, "participant", c.participant, "retryAfter", re.RetryAfter)
	} else {
		r.logger.Debug("frame rejected", "conn", c.id, "error", re)
	}
	r.send(c, re.Message())
}

// send delivers msg to one connection and reports whether it is still
// attached.
func (r *Room) send(c *connection, msg proto.ServerMessage) bool {
	frame, err := proto.Encode(msg)
	if err != nil {
		r.logger.Error("encode frame", "error", err)
		return true
	}
	if !c.out.Deliver(frame) {
		r.logger.Warn("dropping slow connection", "conn", c.id, "participant", c.participant)
		r.drop(c.id, "outbox full")
		return false
	}
	return true
}

// broadcast delivers msg to every identified connection in ConnID order.
func (r *Room) broadcast(msg proto.ServerMessage) {
	frame, err := proto.Encode(msg)
	if err != nil {
		r.logger.Error("encode frame", "error", err)
		return
	}

	var slow []ConnID
	for _, id := range slices.Sorted(maps.Keys(r.conns)) {
		c := r.conns[id]
		if !c.identified {
			continue
		}
		if !c.out.Deliver(frame) {
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		r.logger.Warn("dropping slow connection", "conn", id)
		r.drop(id, "outbox full")
	}
}

func (r *Room) broadcastPresence() {
	r.broadcast(proto.Presence{Players: r.presence.Snapshot()})
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Room:         r.id,
		Version:      r.canvas.Version(),
		Clock:        r.canvas.ClockValue(),
		Frozen:       r.freeze == stateFrozen,
		Participants: len(r.presence.Snapshot()),
		Voxels:       r.canvas.Pack(),
	}
}

// spawn runs task off the loop and tracks it for shutdown.
func (r *Room) spawn(task func()) {
	r.tasks.Add(1)
	r.runTask(func() {
		defer r.tasks.Done()
		task()
	})
}

func (r *Room) handleFlush() {
	if r.closing {
		return
	}
	if r.persisting {
		r.flushPending = true
		return
	}
	r.startPersist()
}

// startPersist snapshots the whole state on the loop and writes it off the
// loop. At most one write is in flight.
func (r *Room) startPersist() {
	state := r.canvas.State()
	if state.Version == r.savedVersion {
		return
	}

	r.persisting = true
	r.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.limits.PersistTimeout)
		defer cancel()
		err := r.store.SaveState(ctx, r.id, state)
		r.internal.Enqueue(event{typ: eventPersisted, version: state.Version, err: err})
	})
}

func (r *Room) handlePersisted(version int64, err error) {
	r.persisting = false
	if err != nil {
		// In-memory state stays authoritative; the next write reschedules.
		r.logger.Error("persistence flush failed", "version", version, "error", err)
	} else {
		r.savedVersion = max(r.savedVersion, version)
		r.logger.Debug("state flushed", "version", version)
	}

	if r.flushPending && !r.closing {
		r.flushPending = false
		r.startPersist()
	}
}

func (r *Room) handleFreeze(reply chan FreezeResult) {
	switch r.freeze {
	case stateFrozen:
		reply <- FreezeResult{Err: ErrRoomFrozen}
		return
	case stateFreezing:
		reply <- FreezeResult{Err: ErrFreezeInProgress}
		return
	}

	export := store.Frozen{
		Version:        r.canvas.Version(),
		Voxels:         r.canvas.Pack(),
		FrozenAt:       r.clock.Now().UTC(),
		RoomIdentifier: r.id,
	}
	r.freeze = stateFreezing
	r.logger.Info("freezing room", "version", export.Version, "cells", len(export.Voxels))

	r.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.limits.PersistTimeout)
		defer cancel()
		err := r.store.PutFrozen(ctx, export)
		r.internal.Enqueue(event{typ: eventFreezeDone, frozen: export, err: err, freezeReply: reply})
	})
}

func (r *Room) handleFreezeDone(ev event) {
	switch {
	case ev.err == nil:
		r.freeze = stateFrozen
		r.logger.Info("room frozen", "version", ev.frozen.Version)
		ev.freezeReply <- FreezeResult{Frozen: ev.frozen}
	case errors.Is(ev.err, store.ErrAlreadyFrozen):
		r.freeze = stateFrozen
		r.logger.Warn("room already had a frozen export")
		ev.freezeReply <- FreezeResult{Err: fmt.Errorf("%w: %w", ErrRoomFrozen, ev.err)}
	default:
		r.freeze = stateLive
		r.logger.Error("freeze failed", "error", ev.err)
		ev.freezeReply <- FreezeResult{Err: fmt.Errorf("freeze room %s: %w", r.id, ev.err)}
	}
}

// shutdown settles in-flight writes, makes a final flush, answers pending
// requests and closes every connection. Runs once, on the loop goroutine.
func (r *Room) shutdown() {
	if r.closing {
		return
	}
	r.closing = true
	r.queue.Close()
	r.flusher.Stop()

	r.tasks.Wait()
	for {
		ev, ok := r.internal.TryDequeue()
		if !ok {
			break
		}
		r.process(ev)
	}

	if version := r.canvas.Version(); version != r.savedVersion {
		ctx, cancel := context.WithTimeout(context.Background(), r.limits.PersistTimeout)
		err := r.store.SaveState(ctx, r.id, r.canvas.State())
		cancel()
		if err != nil {
			r.logger.Error("final flush failed", "version", version, "error", err)
		} else {
			r.savedVersion = version
			r.logger.Info("final flush", "version", version)
		}
	}

	for {
		ev, ok := r.queue.TryDequeue()
		if !ok {
			break
		}
		switch ev.typ {
		case eventSnapshot:
			ev.snapshotReply <- SnapshotResult{Err: ErrRoomClosed}
		case eventFreeze:
			ev.freezeReply <- FreezeResult{Err: ErrRoomClosed}
		case eventJoin:
			ev.out.Close()
		}
	}

	for _, id := range slices.Sorted(maps.Keys(r.conns)) {
		r.conns[id].out.Close()
		r.limiter.Close(id)
		r.presence.Remove(id)
	}
	clear(r.conns)

	r.internal.Close()
	close(r.done)
	r.logger.Info("room stopped")
}

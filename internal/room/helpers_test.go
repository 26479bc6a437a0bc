package room

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/proto"
	"github.com/roach88/voxelroom/internal/store"
	"github.com/roach88/voxelroom/internal/testutil"
)

// fixture drives one room synchronously through Drain.
type fixture struct {
	t     *testing.T
	room  *Room
	clock *testutil.FakeClock
	kv    store.KV
	store *store.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureWithKV(t, store.NewMemoryKV(), opts...)
}

func newFixtureWithKV(t *testing.T, kv store.KV, opts ...Option) *fixture {
	t.Helper()
	clk := testutil.NewFakeClock()
	st := store.New(kv, "test")
	base := []Option{
		WithClock(clk),
		WithIDGenerator(testutil.NewFixedIDs("alice", "bob", "carol")),
		WithLogger(testutil.DiscardLogger()),
		WithSyncTasks(),
	}
	r := New("lobby", st, append(base, opts...)...)
	return &fixture{t: t, room: r, clock: clk, kv: kv, store: st}
}

// asyncTasks restores goroutine-backed durable writes.
func asyncTasks() Option {
	return func(r *Room) {
		r.runTask = func(task func()) { go task() }
	}
}

func (f *fixture) join() (ConnID, *testutil.Recorder) {
	f.t.Helper()
	rec := testutil.NewRecorder()
	id, ok := f.room.Join(rec)
	require.True(f.t, ok)
	f.room.Drain()
	return id, rec
}

func (f *fixture) send(conn ConnID, msg proto.ClientMessage) {
	f.t.Helper()
	frame, err := proto.EncodeClient(msg)
	require.NoError(f.t, err)
	require.True(f.t, f.room.Receive(conn, frame))
	f.room.Drain()
}

func (f *fixture) sendRaw(conn ConnID, frame string) {
	f.t.Helper()
	require.True(f.t, f.room.Receive(conn, []byte(frame)))
	f.room.Drain()
}

// identify joins and completes the handshake, then clears every recorder
// passed in others of the resulting presence broadcast.
func (f *fixture) identify(participant string, others ...*testutil.Recorder) (ConnID, *testutil.Recorder) {
	f.t.Helper()
	id, rec := f.join()
	f.send(id, proto.Hello{ParticipantID: participant})
	rec.Take(f.t)
	for _, o := range others {
		o.Take(f.t)
	}
	return id, rec
}

func (f *fixture) snapshot() Snapshot {
	f.t.Helper()
	ch := f.room.RequestSnapshot()
	f.room.Drain()
	res := <-ch
	require.NoError(f.t, res.Err)
	return res.Snapshot
}

func (f *fixture) freeze() (store.Frozen, error) {
	f.t.Helper()
	ch := f.room.RequestFreeze()
	f.room.Drain()
	select {
	case res := <-ch:
		return res.Frozen, res.Err
	default:
		f.t.Fatal("freeze did not complete during Drain")
		return store.Frozen{}, nil
	}
}

func setOp(cell int, color string, ts int64) proto.WireOp {
	op := proto.WireOp{Kind: proto.OpKindSet, Cell: cell, ClientTimestamp: proto.Stamp(ts)}
	if color != "" {
		op.Color = &color
	}
	return op
}

func clearOp(cell int, ts int64) proto.WireOp {
	return setOp(cell, "", ts)
}

func batch(ops ...proto.WireOp) proto.SetBatch {
	return proto.SetBatch{Ops: ops}
}

func applied(cell int, color string, ts int64, who string) proto.AppliedOp {
	op := proto.AppliedOp{Kind: proto.OpKindSet, Cell: cell, Timestamp: ts, Attribution: who}
	if color != "" {
		op.Color = &color
	}
	return op
}

func rejectOf(reason RejectReason) proto.Reject {
	return proto.Reject{Reason: string(reason)}
}

func packed(cell int, color string, ts int64) canvas.PackedVoxel {
	return canvas.PackedVoxel{Cell: canvas.CellID(cell), Color: canvas.MustColor(color), Timestamp: ts}
}

var errDiskFull = errors.New("disk full")

// flakyKV wraps a backend with injectable failures and a gate that blocks
// frozen writes until released.
type flakyKV struct {
	store.KV

	mu          sync.Mutex
	failBatches int
	failFrozen  int
	batches     int
	gate        chan struct{}
}

func (k *flakyKV) PutBatch(ctx context.Context, entries map[string][]byte) error {
	k.mu.Lock()
	k.batches++
	if k.failBatches > 0 {
		k.failBatches--
		k.mu.Unlock()
		return errDiskFull
	}
	k.mu.Unlock()
	return k.KV.PutBatch(ctx, entries)
}

func (k *flakyKV) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if k.gate != nil {
		<-k.gate
	}
	k.mu.Lock()
	if k.failFrozen > 0 {
		k.failFrozen--
		k.mu.Unlock()
		return false, errDiskFull
	}
	k.mu.Unlock()
	return k.KV.PutIfAbsent(ctx, key, value)
}

func (k *flakyKV) batchCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.batches
}

package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/voxelroom/internal/proto"
)

// Recorder is an in-memory room.Outbox that keeps every delivered frame.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

// NewRecorder creates an empty recorder that accepts frames.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Deliver records a copy of frame unless the recorder simulates a full
// outbox.
func (r *Recorder) Deliver(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return true
}

// Close marks the recorder closed. Safe to call repeatedly.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// SetFull makes subsequent deliveries fail (true) or succeed (false).
func (r *Recorder) SetFull(full bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = full
}

// Frames returns the raw frames recorded so far.
func (r *Recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

// Take decodes and removes every recorded frame.
func (r *Recorder) Take(t testing.TB) []proto.ServerMessage {
	t.Helper()
	r.mu.Lock()
	frames := r.frames
	r.frames = nil
	r.mu.Unlock()

	msgs := make([]proto.ServerMessage, 0, len(frames))
	for _, f := range frames {
		msg, err := proto.DecodeServer(f)
		require.NoError(t, err, "frame %s", f)
		msgs = append(msgs, msg)
	}
	return msgs
}

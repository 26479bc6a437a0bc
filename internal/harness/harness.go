package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/voxelroom/internal/proto"
	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/store"
	"github.com/roach88/voxelroom/internal/testutil"
)

// RoomID is the identifier every scenario room runs under.
const RoomID = "scenario"

// Harness is the test execution engine. It owns one room driven
// synchronously with a fake clock.
type Harness struct {
	room   *room.Room
	clock  *testutil.FakeClock
	logger *slog.Logger

	names []string
	conns map[string]room.ConnID
	outs  map[string]*testutil.Recorder
	seen  map[string]int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. Participant ids the
// room assigns itself come from a fixed sequence (guest-1, guest-2, ...).
func Run(scenario *Scenario) (*Result, error) {
	st := store.New(store.NewMemoryKV(), store.DriverMemory)
	defer st.Close()

	clk := testutil.NewFakeClock()
	limits := room.DefaultLimits()
	if scenario.Limits.MaxBatch > 0 {
		limits.MaxBatch = scenario.Limits.MaxBatch
	}
	if scenario.Limits.BucketCapacity > 0 {
		limits.BucketCapacity = scenario.Limits.BucketCapacity
	}

	h := &Harness{
		clock:  clk,
		logger: testutil.DiscardLogger(),
		conns:  make(map[string]room.ConnID),
		outs:   make(map[string]*testutil.Recorder),
		seen:   make(map[string]int),
	}
	h.room = room.New(RoomID, st,
		room.WithClock(clk),
		room.WithIDGenerator(testutil.NewFixedIDs("guest-1", "guest-2", "guest-3", "guest-4")),
		room.WithLimits(limits),
		room.WithLogger(h.logger),
		room.WithSyncTasks(),
	)
	defer func() {
		h.room.Stop()
		h.room.Drain()
	}()

	for _, name := range scenario.Connections {
		if err := h.join(name); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	final := h.room.RequestSnapshot()
	h.room.Drain()
	res := <-final
	if res.Err != nil {
		return nil, fmt.Errorf("final snapshot: %w", res.Err)
	}
	result.Final = res.Snapshot

	actx := &AssertionContext{
		Store: st,
		Ctx:   context.Background(),
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) join(name string) error {
	out := testutil.NewRecorder()
	id, ok := h.room.Join(out)
	if !ok {
		return fmt.Errorf("join %s: room closed", name)
	}
	h.room.Drain()
	h.names = append(h.names, name)
	h.conns[name] = id
	h.outs[name] = out
	return nil
}

// executeStep performs one step, drains the room and records every frame
// delivered since the previous step, connection by connection.
func (h *Harness) executeStep(n int, step Step, result *Result) error {
	switch {
	case len(step.Burst) > 0:
		for _, send := range step.Burst {
			if err := h.enqueue(n, send, result); err != nil {
				return err
			}
		}
		h.room.Drain()

	case step.Advance > 0:
		result.addStep(n, "", "advance "+step.Advance.String())
		h.clock.Advance(step.Advance)
		h.room.Drain()

	case step.Freeze:
		result.addStep(n, "", "freeze")
		reply := h.room.RequestFreeze()
		h.room.Drain()
		select {
		case res := <-reply:
			if res.Err != nil {
				result.addNote(n, "freeze refused: "+res.Err.Error())
			} else {
				result.addNote(n, fmt.Sprintf("frozen at version %d with %d cell(s)",
					res.Frozen.Version, len(res.Frozen.Voxels)))
			}
		default:
			return fmt.Errorf("freeze did not complete")
		}

	case step.Leave != "":
		result.addStep(n, step.Leave, step.Leave+" leaves")
		h.room.Leave(h.conns[step.Leave])
		h.room.Drain()

	default:
		if err := h.enqueue(n, step.Send, result); err != nil {
			return err
		}
		h.room.Drain()
	}

	h.collect(n, result)
	return nil
}

// enqueue hands one frame to the room without processing it.
func (h *Harness) enqueue(n int, send Send, result *Result) error {
	id, ok := h.conns[send.Conn]
	if !ok {
		return fmt.Errorf("unknown connection %q", send.Conn)
	}

	frame := []byte(send.Frame)
	text := send.Conn + " -> " + send.Frame
	if p := send.Paint; p != nil {
		var err error
		frame, err = paintFrame(p)
		if err != nil {
			return err
		}
		text = fmt.Sprintf("%s -> paint %d cell(s) from %d %s", send.Conn, p.Count, p.From, p.Color)
	}

	result.addStep(n, send.Conn, text)
	if !h.room.Receive(id, frame) {
		return fmt.Errorf("send on %s: room closed", send.Conn)
	}
	return nil
}

func (h *Harness) collect(n int, result *Result) {
	for _, name := range h.names {
		frames := h.outs[name].Frames()
		for _, f := range frames[h.seen[name]:] {
			result.addRecv(n, name, f)
		}
		h.seen[name] = len(frames)
	}
}

func paintFrame(p *Paint) ([]byte, error) {
	ops := make([]proto.WireOp, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		color := p.Color
		ops = append(ops, proto.WireOp{
			Kind:            proto.OpKindSet,
			Cell:            p.From + i,
			Color:           &color,
			ClientTimestamp: proto.Stamp(p.Clock),
		})
	}
	return proto.EncodeClient(proto.SetBatch{Ops: ops})
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/proto"
	"github.com/roach88/voxelroom/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides the durable side of a run to assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertVersion:
		return assertVersion(result, a)
	case AssertCell:
		return assertCell(result, a)
	case AssertCellCount:
		return assertCellCount(result, a)
	case AssertReceived:
		return assertReceived(result, a)
	case AssertRejected:
		return assertRejected(result, a)
	case AssertConverged:
		return assertConverged(result)
	case AssertFrozen:
		return assertFrozen(result, a, actx)
	case AssertPersisted:
		return assertPersisted(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertVersion(result *Result, a Assertion) error {
	if result.Final.Version != *a.Version {
		return &AssertionError{
			Type:     AssertVersion,
			Expected: fmt.Sprintf("version %d", *a.Version),
			Actual:   fmt.Sprintf("version %d", result.Final.Version),
		}
	}
	return nil
}

func assertCell(result *Result, a Assertion) error {
	cell := canvas.CellID(*a.Cell)
	actual := "empty"
	for _, v := range result.Final.Voxels {
		if v.Cell == cell {
			actual = v.Color.String()
			break
		}
	}

	expected := "empty"
	if a.Color != "" {
		expected = canvas.MustColor(a.Color).String()
	}
	if actual != expected {
		return &AssertionError{
			Type:     AssertCell,
			Expected: fmt.Sprintf("cell %d %s", cell, expected),
			Actual:   fmt.Sprintf("cell %d %s", cell, actual),
		}
	}
	return nil
}

func assertCellCount(result *Result, a Assertion) error {
	if len(result.Final.Voxels) != *a.Count {
		return &AssertionError{
			Type:     AssertCellCount,
			Expected: fmt.Sprintf("%d cell(s)", *a.Count),
			Actual:   fmt.Sprintf("%d cell(s)", len(result.Final.Voxels)),
		}
	}
	return nil
}

func assertReceived(result *Result, a Assertion) error {
	msgs, err := decodeFrames(result, a.Conn)
	if err != nil {
		return err
	}
	n := 0
	for _, msg := range msgs {
		if messageType(msg) == a.Message {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertReceived,
			Expected: fmt.Sprintf("%s received %d %s frame(s)", a.Conn, *a.Count, a.Message),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertRejected requires at least one reject with the reason, or exactly
// Count of them when Count is set.
func assertRejected(result *Result, a Assertion) error {
	msgs, err := decodeFrames(result, a.Conn)
	if err != nil {
		return err
	}
	n := 0
	for _, msg := range msgs {
		if r, ok := msg.(proto.Reject); ok && r.Reason == a.Reason {
			n++
		}
	}
	if (a.Count == nil && n == 0) || (a.Count != nil && n != *a.Count) {
		want := "at least 1"
		if a.Count != nil {
			want = fmt.Sprintf("%d", *a.Count)
		}
		return &AssertionError{
			Type:     AssertRejected,
			Expected: fmt.Sprintf("%s %s reject(s) with reason %s", a.Conn, want, a.Reason),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertConverged replays what every identified connection saw (its
// welcome state, then each apply) and requires each replica to equal the
// final room state.
func assertConverged(result *Result) error {
	for conn := range result.Frames {
		msgs, err := decodeFrames(result, conn)
		if err != nil {
			return err
		}

		var replica *canvas.Canvas
		for _, msg := range msgs {
			switch m := msg.(type) {
			case proto.Welcome:
				if replica == nil {
					replica = canvas.Restore(canvas.State{Voxels: m.State, Version: m.Version})
				}
			case proto.Apply:
				if replica == nil {
					return fmt.Errorf("%s received apply before welcome", conn)
				}
				for _, op := range m.Ops {
					applied, err := op.Applied()
					if err != nil {
						return fmt.Errorf("%s: %w", conn, err)
					}
					replica.Merge(applied)
				}
			}
		}
		if replica == nil {
			continue
		}

		got, want := packedString(replica.Pack()), packedString(result.Final.Voxels)
		if got != want {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: want,
				Actual:   fmt.Sprintf("%s sees %s", conn, got),
			}
		}
	}
	return nil
}

func assertFrozen(result *Result, a Assertion, actx *AssertionContext) error {
	frozen, err := actx.Store.LoadFrozen(actx.Ctx, result.Final.Room)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{Type: AssertFrozen, Expected: "frozen export", Actual: "none"}
	}
	if err != nil {
		return err
	}
	if frozen.Version != *a.Version || len(frozen.Voxels) != *a.Count {
		return &AssertionError{
			Type:     AssertFrozen,
			Expected: fmt.Sprintf("version %d with %d cell(s)", *a.Version, *a.Count),
			Actual:   fmt.Sprintf("version %d with %d cell(s)", frozen.Version, len(frozen.Voxels)),
		}
	}
	if !result.Final.Frozen {
		return &AssertionError{Type: AssertFrozen, Expected: "room read-only", Actual: "room live"}
	}
	return nil
}

func assertPersisted(a Assertion, actx *AssertionContext) error {
	state, err := actx.Store.LoadState(actx.Ctx, RoomID)
	actual := "nothing"
	switch {
	case err == nil:
		actual = fmt.Sprintf("version %d", state.Version)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if err != nil || state.Version != *a.Version {
		return &AssertionError{
			Type:     AssertPersisted,
			Expected: fmt.Sprintf("version %d", *a.Version),
			Actual:   actual,
		}
	}
	return nil
}

func decodeFrames(result *Result, conn string) ([]proto.ServerMessage, error) {
	msgs := make([]proto.ServerMessage, 0, len(result.Frames[conn]))
	for _, f := range result.Frames[conn] {
		msg, err := proto.DecodeServer(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", conn, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func messageType(msg proto.ServerMessage) string {
	switch msg.(type) {
	case proto.Welcome:
		return proto.TypeWelcome
	case proto.Apply:
		return proto.TypeApply
	case proto.Reject:
		return proto.TypeReject
	case proto.Pong:
		return proto.TypePong
	case proto.Presence:
		return proto.TypePresence
	default:
		return ""
	}
}

func packedString(p canvas.PackedState) string {
	parts := make([]string, 0, len(p))
	for _, v := range p {
		parts = append(parts, fmt.Sprintf("%d=%s@%d", v.Cell, v.Color, v.Timestamp))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

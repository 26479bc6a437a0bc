package harness

import (
	"github.com/roach88/voxelroom/internal/room"
)

// Trace event kinds.
const (
	EventStep = "step" // an action taken by the scenario
	EventRecv = "recv" // a frame delivered to a connection
	EventNote = "note" // an outcome reported by the room itself
)

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`
	Conn string `json:"conn,omitempty"`
	Text string `json:"text"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the steps and every frame the room sent, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the room state after the last step.
	Final room.Snapshot `json:"final"`

	// Frames holds every frame delivered to each connection.
	Frames map[string][][]byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Frames: make(map[string][][]byte),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addStep(step int, conn, text string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Kind: EventStep, Conn: conn, Text: text})
}

func (r *Result) addRecv(step int, conn string, frame []byte) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Kind: EventRecv, Conn: conn, Text: string(frame)})
	r.Frames[conn] = append(r.Frames[conn], frame)
}

func (r *Result) addNote(step int, text string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Kind: EventNote, Text: text})
}

package proto

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/voxelroom/internal/canvas"
)

// Coordinator message type tags. TypePresence is shared with the client
// direction.
const (
	TypeWelcome = "welcome"
	TypeApply   = "apply"
	TypeReject  = "reject"
	TypePong    = "pong"
)

// ServerMessage is implemented by every coordinator → client frame.
type ServerMessage interface {
	serverMessage()
}

// Welcome completes the handshake with the assigned identity and the full
// current state.
type Welcome struct {
	ParticipantID string             `json:"participantId"`
	State         canvas.PackedState `json:"state"`
	Version       int64              `json:"version"`
}

// Apply broadcasts the accepted operations of one batch and the version
// they produced.
type Apply struct {
	Ops     []AppliedOp `json:"ops"`
	Version int64       `json:"version"`
}

// Reject tells the sender a frame was refused. RetryAfterMs is set for
// throttling.
type Reject struct {
	Reason       string `json:"reason"`
	RetryAfterMs *int64 `json:"retryAfterMs,omitempty"`
}

// Pong answers a Ping with the server-observed time in unix milliseconds.
type Pong struct {
	At  float64 `json:"at"`
	Now int64   `json:"now"`
}

// Presence is the full deduplicated presence snapshot.
type Presence struct {
	Players []PresenceRecord `json:"players"`
}

func (Welcome) serverMessage()  {}
func (Apply) serverMessage()    {}
func (Reject) serverMessage()   {}
func (Pong) serverMessage()     {}
func (Presence) serverMessage() {}

// AppliedOp is the wire form of canvas.Applied. Color is null for clears.
type AppliedOp struct {
	Kind        string  `json:"kind"`
	Cell        int     `json:"cell"`
	Color       *string `json:"color"`
	Timestamp   int64   `json:"timestamp"`
	Attribution string  `json:"attribution,omitempty"`
}

// PresenceRecord is one participant's presence entry.
type PresenceRecord struct {
	ParticipantID string         `json:"participantId"`
	Cursor        *canvas.Cursor `json:"cursor,omitempty"`
}

// FromApplied converts resolved operations to their wire form.
func FromApplied(applied []canvas.Applied) []AppliedOp {
	ops := make([]AppliedOp, 0, len(applied))
	for _, a := range applied {
		op := AppliedOp{
			Kind:        OpKindSet,
			Cell:        int(a.Cell),
			Timestamp:   a.Timestamp,
			Attribution: a.Attribution,
		}
		if a.Color != nil {
			hex := a.Color.String()
			op.Color = &hex
		}
		ops = append(ops, op)
	}
	return ops
}

// Applied converts the wire form back to a canvas.Applied.
func (o AppliedOp) Applied() (canvas.Applied, error) {
	a := canvas.Applied{
		Cell:        canvas.CellID(o.Cell),
		Timestamp:   o.Timestamp,
		Attribution: o.Attribution,
	}
	if o.Color != nil {
		c, err := canvas.ParseColor(*o.Color)
		if err != nil {
			return canvas.Applied{}, err
		}
		a.Color = &c
	}
	return a, nil
}

// Encode renders a coordinator frame with its "type" tag.
func Encode(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case Welcome:
		if m.State == nil {
			m.State = canvas.PackedState{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Welcome
		}{TypeWelcome, m})
	case Apply:
		if m.Ops == nil {
			m.Ops = []AppliedOp{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Apply
		}{TypeApply, m})
	case Reject:
		return json.Marshal(struct {
			Type string `json:"type"`
			Reject
		}{TypeReject, m})
	case Pong:
		return json.Marshal(struct {
			Type string `json:"type"`
			Pong
		}{TypePong, m})
	case Presence:
		if m.Players == nil {
			m.Players = []PresenceRecord{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Presence
		}{TypePresence, m})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// DecodeServer parses one coordinator frame. Used by clients and tests.
func DecodeServer(frame []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg ServerMessage
		err error
	)
	switch env.Type {
	case TypeWelcome:
		var m Welcome
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypeApply:
		var m Apply
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypeReject:
		var m Reject
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypePong:
		var m Pong
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypePresence:
		var m Presence
		err = json.Unmarshal(frame, &m)
		msg = m
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

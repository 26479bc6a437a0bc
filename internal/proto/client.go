package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/voxelroom/internal/canvas"
)

// Client message type tags.
const (
	TypeHello    = "hello"
	TypeSet      = "set"
	TypePing     = "ping"
	TypePresence = "presence"
)

// OpKindSet is the only operation kind. A null color clears the cell.
const OpKindSet = "set"

var (
	// ErrMalformed is returned for frames that are not a JSON object with a
	// string "type" field, or whose body does not match the type.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType is returned for a well-formed frame with an unknown type.
	ErrUnknownType = errors.New("unknown message type")
)

// ClientMessage is implemented by every client → coordinator frame.
type ClientMessage interface {
	clientMessage()
}

// Hello starts the handshake. An empty ParticipantID asks the coordinator
// to assign one.
type Hello struct {
	ParticipantID string `json:"participantId,omitempty"`
	ClientClock   *Stamp `json:"clientClock,omitempty"`
}

// SetBatch is an ordered batch of write operations resolved together.
type SetBatch struct {
	Ops []WireOp `json:"ops"`
}

// Ping is a liveness probe echoed back as Pong.
type Ping struct {
	At float64 `json:"at"`
}

// PresenceUpdate reports the sender's cursor. A nil Cursor means the
// participant is not hovering the grid.
type PresenceUpdate struct {
	Cursor *canvas.Cursor `json:"cursor,omitempty"`
}

func (Hello) clientMessage()          {}
func (SetBatch) clientMessage()       {}
func (Ping) clientMessage()           {}
func (PresenceUpdate) clientMessage() {}

// WireOp is one operation inside a set batch.
type WireOp struct {
	Kind            string  `json:"kind"`
	Cell            int     `json:"cell"`
	Color           *string `json:"color"`
	ClientTimestamp Stamp   `json:"clientTimestamp"`
	Attribution     string  `json:"attribution,omitempty"`
}

// Op converts the wire form to a canvas operation. The cell is not range
// checked here; the canvas silently discards out-of-range cells.
func (w WireOp) Op() (canvas.Op, error) {
	if w.Kind != OpKindSet {
		return canvas.Op{}, fmt.Errorf("%w: op kind %q", ErrMalformed, w.Kind)
	}
	op := canvas.Op{
		Cell:            canvas.CellID(w.Cell),
		ClientTimestamp: int64(w.ClientTimestamp),
		Attribution:     w.Attribution,
	}
	if w.Color != nil {
		c, err := canvas.ParseColor(*w.Color)
		if err != nil {
			return canvas.Op{}, err
		}
		op.Color = &c
	}
	return op, nil
}

// Stamp is a client-supplied clock value. Browsers send numbers that may
// carry a fractional part; it is truncated. Non-finite values decode as 0.
type Stamp int64

// UnmarshalJSON accepts any JSON number.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: timestamp %s", ErrMalformed, data)
	}
	if i, err := n.Int64(); err == nil {
		*s = Stamp(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*s = 0
		return nil
	}
	switch {
	case f >= math.MaxInt64:
		*s = Stamp(math.MaxInt64)
	case f <= math.MinInt64:
		*s = Stamp(math.MinInt64)
	default:
		*s = Stamp(int64(f))
	}
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClient parses one client frame into its variant.
func DecodeClient(frame []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg ClientMessage
		err error
	)
	switch env.Type {
	case TypeHello:
		var m Hello
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypeSet:
		var m SetBatch
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypePing:
		var m Ping
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypePresence:
		var m PresenceUpdate
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

// EncodeClient renders a client frame. Used by test clients and the
// harness; the coordinator itself only decodes client frames.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	switch m := msg.(type) {
	case Hello:
		return json.Marshal(struct {
			Type string `json:"type"`
			Hello
		}{TypeHello, m})
	case SetBatch:
		return json.Marshal(struct {
			Type string `json:"type"`
			SetBatch
		}{TypeSet, m})
	case Ping:
		return json.Marshal(struct {
			Type string `json:"type"`
			Ping
		}{TypePing, m})
	case PresenceUpdate:
		return json.Marshal(struct {
			Type string `json:"type"`
			PresenceUpdate
		}{TypePresence, m})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

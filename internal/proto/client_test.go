package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/voxelroom/internal/canvas"
)

func TestDecodeClient_Hello(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"hello","participantId":"alice","clientClock":42}`))
	require.NoError(t, err)

	hello, ok := msg.(Hello)
	require.True(t, ok, "expected Hello, got %T", msg)
	assert.Equal(t, "alice", hello.ParticipantID)
	require.NotNil(t, hello.ClientClock)
	assert.Equal(t, Stamp(42), *hello.ClientClock)
}

func TestDecodeClient_HelloWithoutIdentity(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, Hello{}, msg)
}

func TestDecodeClient_SetBatch(t *testing.T) {
	frame := `{"type":"set","ops":[
		{"kind":"set","cell":5,"color":"#FF0000","clientTimestamp":10},
		{"kind":"set","cell":6,"color":null,"clientTimestamp":11.9,"attribution":"bob"}
	]}`
	msg, err := DecodeClient([]byte(frame))
	require.NoError(t, err)

	batch, ok := msg.(SetBatch)
	require.True(t, ok)
	require.Len(t, batch.Ops, 2)

	first, err := batch.Ops[0].Op()
	require.NoError(t, err)
	assert.Equal(t, canvas.CellID(5), first.Cell)
	require.NotNil(t, first.Color)
	assert.Equal(t, canvas.Color(0xff0000), *first.Color)
	assert.Equal(t, int64(10), first.ClientTimestamp)

	second, err := batch.Ops[1].Op()
	require.NoError(t, err)
	assert.Nil(t, second.Color, "null color is a clear")
	assert.Equal(t, int64(11), second.ClientTimestamp, "fractional stamps truncate")
	assert.Equal(t, "bob", second.Attribution)
}

func TestDecodeClient_MissingColorIsClear(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"set","ops":[{"kind":"set","cell":1,"clientTimestamp":0}]}`))
	require.NoError(t, err)

	op, err := msg.(SetBatch).Ops[0].Op()
	require.NoError(t, err)
	assert.Nil(t, op.Color)
}

func TestDecodeClient_PingAndPresence(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"ping","at":1234.5}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{At: 1234.5}, msg)

	msg, err = DecodeClient([]byte(`{"type":"presence","cursor":[1,2,3]}`))
	require.NoError(t, err)
	pu := msg.(PresenceUpdate)
	require.NotNil(t, pu.Cursor)
	assert.Equal(t, canvas.Cursor{1, 2, 3}, *pu.Cursor)

	msg, err = DecodeClient([]byte(`{"type":"presence","cursor":null}`))
	require.NoError(t, err)
	assert.Nil(t, msg.(PresenceUpdate).Cursor)
}

func TestDecodeClient_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing type", `{"ops":[]}`, ErrMalformed},
		{"non-string type", `{"type":7}`, ErrMalformed},
		{"unknown type", `{"type":"teleport"}`, ErrUnknownType},
		{"bad body", `{"type":"set","ops":"nope"}`, ErrMalformed},
		{"bad stamp", `{"type":"set","ops":[{"kind":"set","cell":1,"clientTimestamp":"x"}]}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClient([]byte(tt.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWireOp_OpRejectsUnknownKindAndBadColor(t *testing.T) {
	_, err := WireOp{Kind: "paint", Cell: 1}.Op()
	assert.ErrorIs(t, err, ErrMalformed)

	bad := "#zzzzzz"
	_, err = WireOp{Kind: OpKindSet, Cell: 1, Color: &bad}.Op()
	assert.ErrorIs(t, err, canvas.ErrInvalidColor)
}

func TestWireOp_OpKeepsOutOfRangeCell(t *testing.T) {
	op, err := WireOp{Kind: OpKindSet, Cell: 9000}.Op()
	require.NoError(t, err)
	assert.False(t, op.Cell.Valid())
}

func TestEncodeClient_RoundTrip(t *testing.T) {
	red := "#ff0000"
	msgs := []ClientMessage{
		Hello{ParticipantID: "alice"},
		SetBatch{Ops: []WireOp{{Kind: OpKindSet, Cell: 3, Color: &red, ClientTimestamp: 9}}},
		Ping{At: 7},
		PresenceUpdate{Cursor: &canvas.Cursor{0, 0, 0}},
	}
	for _, want := range msgs {
		frame, err := EncodeClient(want)
		require.NoError(t, err)
		got, err := DecodeClient(frame)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

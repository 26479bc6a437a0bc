package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/voxelroom/internal/canvas"
)

func TestEncode_Welcome(t *testing.T) {
	frame, err := Encode(Welcome{
		ParticipantID: "alice",
		State:         canvas.PackedState{{Cell: 5, Color: 0xff0000, Timestamp: 3}},
		Version:       2,
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"welcome","participantId":"alice","state":[[5,"#ff0000",3]],"version":2}`,
		string(frame))
}

func TestEncode_EmptyCollectionsAreArrays(t *testing.T) {
	frame, err := Encode(Welcome{ParticipantID: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"welcome","participantId":"a","state":[],"version":0}`, string(frame))

	frame, err = Encode(Presence{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"presence","players":[]}`, string(frame))

	frame, err = Encode(Apply{Version: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"apply","ops":[],"version":1}`, string(frame))
}

func TestEncode_ApplyCarriesClearsAsNull(t *testing.T) {
	red := canvas.Color(0xff0000)
	ops := FromApplied([]canvas.Applied{
		{Cell: 1, Color: &red, Timestamp: 4, Attribution: "alice"},
		{Cell: 2, Timestamp: 5},
	})
	frame, err := Encode(Apply{Ops: ops, Version: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"apply","version":7,"ops":[
		{"kind":"set","cell":1,"color":"#ff0000","timestamp":4,"attribution":"alice"},
		{"kind":"set","cell":2,"color":null,"timestamp":5}
	]}`, string(frame))
}

func TestEncode_Reject(t *testing.T) {
	frame, err := Encode(Reject{Reason: "malformed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reject","reason":"malformed"}`, string(frame))

	retry := int64(150)
	frame, err = Encode(Reject{Reason: "rate_limited", RetryAfterMs: &retry})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reject","reason":"rate_limited","retryAfterMs":150}`, string(frame))
}

func TestEncode_PongAndPresence(t *testing.T) {
	frame, err := Encode(Pong{At: 12.5, Now: 1000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","at":12.5,"now":1000}`, string(frame))

	frame, err = Encode(Presence{Players: []PresenceRecord{
		{ParticipantID: "alice", Cursor: &canvas.Cursor{1, 2, 3}},
		{ParticipantID: "bob"},
	}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"presence","players":[{"participantId":"alice","cursor":[1,2,3]},{"participantId":"bob"}]}`,
		string(frame))
}

func TestDecodeServer_RoundTrip(t *testing.T) {
	retry := int64(50)
	green := "#00ff00"
	msgs := []ServerMessage{
		Welcome{ParticipantID: "a", State: canvas.PackedState{{Cell: 1, Color: 2, Timestamp: 3}}, Version: 1},
		Apply{Ops: []AppliedOp{{Kind: OpKindSet, Cell: 1, Color: &green, Timestamp: 2}}, Version: 4},
		Reject{Reason: "rate_limited", RetryAfterMs: &retry},
		Pong{At: 1, Now: 2},
		Presence{Players: []PresenceRecord{{ParticipantID: "a"}}},
	}
	for _, want := range msgs {
		frame, err := Encode(want)
		require.NoError(t, err)
		got, err := DecodeServer(frame)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAppliedOp_AppliedRoundTrip(t *testing.T) {
	blue := canvas.Color(0x0000ff)
	want := []canvas.Applied{
		{Cell: 10, Color: &blue, Timestamp: 8, Attribution: "carol"},
		{Cell: 11, Timestamp: 9},
	}
	for i, op := range FromApplied(want) {
		got, err := op.Applied()
		require.NoError(t, err)
		assert.Equal(t, want[i], got)
	}
}

package canvas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedVoxel_MarshalTriple(t *testing.T) {
	data, err := json.Marshal(PackedVoxel{Cell: 100, Color: MustColor("#112233"), Timestamp: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `[100, "#112233", 5]`, string(data))
}

func TestPackedVoxel_UnmarshalLegacyPair(t *testing.T) {
	var pv PackedVoxel
	require.NoError(t, json.Unmarshal([]byte(`[12, "#ABCDEF"]`), &pv))
	assert.Equal(t, PackedVoxel{Cell: 12, Color: MustColor("#abcdef"), Timestamp: 0}, pv)
}

func TestPackedVoxel_UnmarshalRejectsBadShapes(t *testing.T) {
	inputs := []string{
		`[]`,
		`[1]`,
		`[1, "#000000", 2, 3]`,
		`{"cell": 1}`,
		`["one", "#000000", 1]`,
		`[1, "nope", 1]`,
		`[1, "#000000", "x"]`,
	}
	for _, in := range inputs {
		var pv PackedVoxel
		assert.Error(t, json.Unmarshal([]byte(in), &pv), "input %s", in)
	}
}

func TestPackedState_EmptyMarshalsAsArray(t *testing.T) {
	var s PackedState
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = json.Marshal(State{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"voxels": [], "version": 0, "clock": 0}`, string(data))
}

func TestPackedState_MixedLegacyDecode(t *testing.T) {
	var s PackedState
	require.NoError(t, json.Unmarshal([]byte(`[[1,"#010101",4],[2,"#020202"]]`), &s))
	require.Len(t, s, 2)
	assert.Equal(t, int64(4), s[0].Timestamp)
	assert.Equal(t, int64(0), s[1].Timestamp)
}

func TestState_JSONRoundTripThroughRestore(t *testing.T) {
	c := New()
	c.ApplyBatch([]Op{setOp(1, "#010101", 0), setOp(2, "#020202", 9)})

	data, err := json.Marshal(c.State())
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.State(), Restore(decoded).State())
}

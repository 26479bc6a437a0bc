package room

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/proto"
)

func TestPresence_SnapshotSortedByParticipant(t *testing.T) {
	p := NewPresence()
	p.Update(1, "carol", nil)
	p.Update(2, "alice", &canvas.Cursor{0, 1, 2})
	p.Update(3, "bob", nil)

	assert.Equal(t, []proto.PresenceRecord{
		{ParticipantID: "alice", Cursor: &canvas.Cursor{0, 1, 2}},
		{ParticipantID: "bob"},
		{ParticipantID: "carol"},
	}, p.Snapshot())
}

func TestPresence_LastUpdateWinsPerParticipant(t *testing.T) {
	p := NewPresence()
	p.Update(1, "alice", &canvas.Cursor{1, 1, 1})
	p.Update(2, "alice", &canvas.Cursor{2, 2, 2})
	assert.Equal(t, []proto.PresenceRecord{
		{ParticipantID: "alice", Cursor: &canvas.Cursor{2, 2, 2}},
	}, p.Snapshot())

	p.Update(1, "alice", nil)
	assert.Equal(t, []proto.PresenceRecord{{ParticipantID: "alice"}}, p.Snapshot())
	assert.Equal(t, 2, p.Len())
}

func TestPresence_Remove(t *testing.T) {
	p := NewPresence()
	p.Update(1, "alice", nil)

	assert.True(t, p.Remove(1))
	assert.False(t, p.Remove(1))
	assert.Empty(t, p.Snapshot())
}

func TestPresence_CursorIsCopied(t *testing.T) {
	p := NewPresence()
	c := canvas.Cursor{1, 2, 3}
	p.Update(1, "alice", &c)
	c[0] = 19

	snap := p.Snapshot()
	assert.Equal(t, canvas.Cursor{1, 2, 3}, *snap[0].Cursor)

	snap[0].Cursor[1] = 19
	assert.Equal(t, canvas.Cursor{1, 2, 3}, *p.Snapshot()[0].Cursor)
}

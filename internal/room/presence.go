package room

import (
	"sort"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/proto"
)

// Presence tracks the ephemeral cursor of every identified connection.
//
// Snapshots are deduplicated by participant id: when one participant holds
// several connections, the most recently updated connection wins. Records
// are sorted by participant id so broadcasts are stable.
//
// Not safe for concurrent use. The room loop owns it.
type Presence struct {
	seq     uint64
	entries map[ConnID]presenceEntry
}

type presenceEntry struct {
	participant string
	cursor      *canvas.Cursor
	seq         uint64
}

// NewPresence creates an empty tracker.
func NewPresence() *Presence {
	return &Presence{entries: make(map[ConnID]presenceEntry)}
}

// Update records conn's participant and cursor. A nil cursor means the
// participant is present but not hovering the grid.
func (p *Presence) Update(conn ConnID, participant string, cursor *canvas.Cursor) {
	p.seq++
	var c *canvas.Cursor
	if cursor != nil {
		cp := *cursor
		c = &cp
	}
	p.entries[conn] = presenceEntry{participant: participant, cursor: c, seq: p.seq}
}

// Remove drops conn and reports whether it was tracked.
func (p *Presence) Remove(conn ConnID) bool {
	if _, ok := p.entries[conn]; !ok {
		return false
	}
	delete(p.entries, conn)
	return true
}

// Len returns the number of tracked connections.
func (p *Presence) Len() int {
	return len(p.entries)
}

// Snapshot returns one record per participant.
func (p *Presence) Snapshot() []proto.PresenceRecord {
	latest := make(map[string]presenceEntry, len(p.entries))
	for _, e := range p.entries {
		if cur, ok := latest[e.participant]; !ok || e.seq > cur.seq {
			latest[e.participant] = e
		}
	}

	records := make([]proto.PresenceRecord, 0, len(latest))
	for id, e := range latest {
		rec := proto.PresenceRecord{ParticipantID: id}
		if e.cursor != nil {
			c := *e.cursor
			rec.Cursor = &c
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ParticipantID < records[j].ParticipantID
	})
	return records
}

package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs hands out participant identifiers from a predetermined list.
//
// This enables deterministic test execution and golden trace comparison.
// Once the list is exhausted it falls back to "participant-<n>" so that a
// scenario opening more connections than expected still runs.
//
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedIDs("alice", "bob")
//	gen.NewParticipantID() // "alice"
//	gen.NewParticipantID() // "bob"
//	gen.NewParticipantID() // "participant-3"
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// NewParticipantID returns the next predetermined id.
// Implements room.IDGenerator.
func (g *FixedIDs) NewParticipantID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("participant-%d", g.idx)
}

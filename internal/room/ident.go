package room

import (
	"github.com/google/uuid"
)

// IDGenerator assigns participant ids to connections whose handshake did
// not carry a usable one. Implemented by UUIDGenerator (production) and
// testutil.FixedIDs (tests).
type IDGenerator interface {
	NewParticipantID() string
}

// UUIDGenerator issues random (version 4) UUIDs.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// NewParticipantID returns a new random UUID in hyphenated form.
//
// Panics if the system randomness source fails.
func (UUIDGenerator) NewParticipantID() string {
	return uuid.Must(uuid.NewRandom()).String()
}

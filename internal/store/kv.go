package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key (or a room's state) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFrozen is returned by PutFrozen when the room already has
	// a frozen export.
	ErrAlreadyFrozen = errors.New("room already frozen")

	// ErrInvalidRoom is returned for room identifiers outside [A-Za-z0-9_-]{1,64}.
	ErrInvalidRoom = errors.New("invalid room identifier")
)

// KV is the minimal durable key/value contract a backend provides.
//
// Keys are slash-separated logical paths such as "rooms/lobby/meta".
// Backends may translate them (leveldb prefixes a slash) but must round-trip
// them unchanged through Get.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// PutBatch writes all entries atomically, replacing existing values.
	PutBatch(ctx context.Context, entries map[string][]byte) error

	// PutIfAbsent writes value only if key does not exist yet and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	Close() error
}

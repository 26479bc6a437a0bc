package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/voxelroom/internal/canvas"
)

// MaxRoomIDLen bounds room identifiers, in bytes.
const MaxRoomIDLen = 64

// Meta is the scalar part of a persisted room.
type Meta struct {
	Version int64 `json:"version"`
	Clock   int64 `json:"clock"`
}

// Frozen is the permanent read-only export of a room.
type Frozen struct {
	Version        int64              `json:"version"`
	Voxels         canvas.PackedState `json:"voxels"`
	FrozenAt       time.Time          `json:"frozenAt"`
	RoomIdentifier string             `json:"roomIdentifier"`
}

// Store maps room state onto a KV backend.
type Store struct {
	kv     KV
	driver string
}

// New wraps a backend. driver is informational and shows up in logs.
func New(kv KV, driver string) *Store {
	return &Store{kv: kv, driver: driver}
}

// Driver returns the backend name.
func (s *Store) Driver() string {
	return s.driver
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.kv == nil {
		return nil
	}
	return s.kv.Close()
}

// ValidRoomID reports whether id is a usable room identifier.
func ValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func metaKey(room string) string   { return "rooms/" + room + "/meta" }
func voxelsKey(room string) string { return "rooms/" + room + "/voxels" }
func frozenKey(room string) string { return "frozen/" + room }

func checkRoom(room string) error {
	if !ValidRoomID(room) {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

// LoadState reads the last flushed state of a room. It returns ErrNotFound
// when the room was never flushed. A missing voxels key with present meta
// yields an empty grid.
func (s *Store) LoadState(ctx context.Context, room string) (canvas.State, error) {
	if err := checkRoom(room); err != nil {
		return canvas.State{}, err
	}

	raw, err := s.kv.Get(ctx, metaKey(room))
	if err != nil {
		return canvas.State{}, fmt.Errorf("load meta %s: %w", room, err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return canvas.State{}, fmt.Errorf("decode meta %s: %w", room, err)
	}

	state := canvas.State{Version: meta.Version, Clock: meta.Clock}
	raw, err = s.kv.Get(ctx, voxelsKey(room))
	switch {
	case errors.Is(err, ErrNotFound):
		return state, nil
	case err != nil:
		return canvas.State{}, fmt.Errorf("load voxels %s: %w", room, err)
	}
	if err := json.Unmarshal(raw, &state.Voxels); err != nil {
		return canvas.State{}, fmt.Errorf("decode voxels %s: %w", room, err)
	}
	return state, nil
}

// SaveState writes meta and voxels for a room in one atomic batch.
func (s *Store) SaveState(ctx context.Context, room string, state canvas.State) error {
	if err := checkRoom(room); err != nil {
		return err
	}

	meta, err := json.Marshal(Meta{Version: state.Version, Clock: state.Clock})
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", room, err)
	}
	voxels, err := json.Marshal(state.Voxels)
	if err != nil {
		return fmt.Errorf("encode voxels %s: %w", room, err)
	}

	if err := s.kv.PutBatch(ctx, map[string][]byte{
		metaKey(room):   meta,
		voxelsKey(room): voxels,
	}); err != nil {
		return fmt.Errorf("save state %s: %w", room, err)
	}
	return nil
}

// LoadFrozen returns a room's frozen export or ErrNotFound.
func (s *Store) LoadFrozen(ctx context.Context, room string) (Frozen, error) {
	if err := checkRoom(room); err != nil {
		return Frozen{}, err
	}

	raw, err := s.kv.Get(ctx, frozenKey(room))
	if err != nil {
		return Frozen{}, fmt.Errorf("load frozen %s: %w", room, err)
	}
	var f Frozen
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frozen{}, fmt.Errorf("decode frozen %s: %w", room, err)
	}
	return f, nil
}

// IsFrozen reports whether a frozen export exists for room.
func (s *Store) IsFrozen(ctx context.Context, room string) (bool, error) {
	_, err := s.LoadFrozen(ctx, room)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PutFrozen writes the frozen export once. A second call for the same room
// returns ErrAlreadyFrozen and leaves the first export in place.
func (s *Store) PutFrozen(ctx context.Context, f Frozen) error {
	if err := checkRoom(f.RoomIdentifier); err != nil {
		return err
	}
	if f.Voxels == nil {
		f.Voxels = canvas.PackedState{}
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frozen %s: %w", f.RoomIdentifier, err)
	}
	written, err := s.kv.PutIfAbsent(ctx, frozenKey(f.RoomIdentifier), raw)
	if err != nil {
		return fmt.Errorf("put frozen %s: %w", f.RoomIdentifier, err)
	}
	if !written {
		return fmt.Errorf("put frozen %s: %w", f.RoomIdentifier, ErrAlreadyFrozen)
	}
	return nil
}

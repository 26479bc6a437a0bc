package canvas

import (
	"encoding/json"
	"fmt"
)

// PackedVoxel is one non-empty cell in wire/durable form:
// [cell, "#rrggbb", timestamp]. The legacy form [cell, "#rrggbb"] decodes
// with timestamp 0.
type PackedVoxel struct {
	Cell      CellID
	Color     Color
	Timestamp int64
}

// PackedState is the packed cell list, omitting empty cells.
type PackedState []PackedVoxel

// State is a detached snapshot of a canvas: packed cells plus the version
// and clock metadata persisted alongside them.
type State struct {
	Voxels  PackedState `json:"voxels"`
	Version int64       `json:"version"`
	Clock   int64       `json:"clock"`
}

// MarshalJSON encodes the voxel as a 3-element array.
func (p PackedVoxel) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{int(p.Cell), p.Color.String(), p.Timestamp})
}

// UnmarshalJSON accepts the 3-element form and the legacy 2-element form.
func (p *PackedVoxel) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("packed voxel: %w", err)
	}
	if len(parts) != 2 && len(parts) != 3 {
		return fmt.Errorf("packed voxel: want 2 or 3 elements, got %d", len(parts))
	}

	var cell int
	if err := json.Unmarshal(parts[0], &cell); err != nil {
		return fmt.Errorf("packed voxel cell: %w", err)
	}
	var color Color
	if err := json.Unmarshal(parts[1], &color); err != nil {
		return fmt.Errorf("packed voxel color: %w", err)
	}
	var ts int64
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &ts); err != nil {
			return fmt.Errorf("packed voxel timestamp: %w", err)
		}
	}

	*p = PackedVoxel{Cell: CellID(cell), Color: color, Timestamp: ts}
	return nil
}

// MarshalJSON encodes a nil state as [] rather than null.
func (s PackedState) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]PackedVoxel(s))
}

// Cells returns the packed state as a cell→color map.
func (s PackedState) Cells() map[CellID]Color {
	m := make(map[CellID]Color, len(s))
	for _, pv := range s {
		m[pv.Cell] = pv.Color
	}
	return m
}

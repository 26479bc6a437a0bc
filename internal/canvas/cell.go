package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SideLength is the fixed edge length of the grid.
const SideLength = 20

// CellCount is the number of addressable cells (SideLength^3).
const CellCount = SideLength * SideLength * SideLength

var (
	// ErrInvalidCell is returned for coordinates or ids outside the grid.
	ErrInvalidCell = errors.New("cell out of range")

	// ErrInvalidColor is returned for strings that are not 6-digit hex colors.
	ErrInvalidColor = errors.New("invalid color")
)

// CellID addresses one grid position as x + y*20 + z*400.
type CellID int

// CellAt returns the id of (x, y, z). Coordinates outside [0, 20) are
// rejected, never clamped.
func CellAt(x, y, z int) (CellID, error) {
	if !inAxis(x) || !inAxis(y) || !inAxis(z) {
		return 0, fmt.Errorf("%w: (%d,%d,%d)", ErrInvalidCell, x, y, z)
	}
	return CellID(x + y*SideLength + z*SideLength*SideLength), nil
}

// Valid reports whether the id lies in [0, CellCount).
func (c CellID) Valid() bool {
	return c >= 0 && c < CellCount
}

// Coords inverts CellAt. Only meaningful for valid ids.
func (c CellID) Coords() (x, y, z int) {
	n := int(c)
	return n % SideLength, (n / SideLength) % SideLength, n / (SideLength * SideLength)
}

func inAxis(v int) bool {
	return v >= 0 && v < SideLength
}

// Color is a 24-bit RGB value. Empty cells are absent from the canvas,
// so there is no "no color" Color.
type Color uint32

// ParseColor accepts "#rrggbb" or "rrggbb" in any case.
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color(v), nil
}

// MustColor is ParseColor for literals in tests and fixtures.
func MustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the canonical "#rrggbb" form.
func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xFFFFFF)
}

// MarshalJSON encodes the color as its canonical hex string.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a hex color string.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidColor, data)
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Cursor is a presence position in grid coordinates.
type Cursor [3]int

// Valid reports whether every axis lies inside the grid.
func (c Cursor) Valid() bool {
	return inAxis(c[0]) && inAxis(c[1]) && inAxis(c[2])
}

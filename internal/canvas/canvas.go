package canvas

import "sort"

// Voxel is the record stored for one non-empty cell.
type Voxel struct {
	Color       Color
	Timestamp   int64  // logical clock value of the last accepted write
	Attribution string // optional participant id of the writer
}

// Op is a client-submitted write. A nil Color clears the cell.
type Op struct {
	Cell            CellID
	Color           *Color
	ClientTimestamp int64
	Attribution     string
}

// Applied is an Op after resolution, carrying the coordinator-assigned
// timestamp. It is the only form other connections ever observe.
type Applied struct {
	Cell        CellID
	Color       *Color // nil for a clear
	Timestamp   int64
	Attribution string
}

// IsClear reports whether the applied op removed the cell.
func (a Applied) IsClear() bool {
	return a.Color == nil
}

// Canvas is the sparse cell store plus its logical clock and version.
type Canvas struct {
	cells   map[CellID]Voxel
	clock   *Clock
	version int64
}

// New creates an empty canvas at version 0, clock 0.
func New() *Canvas {
	return &Canvas{
		cells: make(map[CellID]Voxel),
		clock: NewClock(),
	}
}

// Apply resolves one operation against the store with last-write-wins
// semantics and returns the applied form. ok is false when the op was
// discarded: invalid cell, stale write, or a clear of an empty cell.
//
// Apply does not touch the version; see ApplyBatch.
func (c *Canvas) Apply(op Op) (applied Applied, ok bool) {
	if !op.Cell.Valid() {
		return Applied{}, false
	}

	t := c.clock.Advance(op.ClientTimestamp)
	existing, exists := c.cells[op.Cell]

	if op.Color == nil {
		if !exists || existing.Timestamp > t {
			return Applied{}, false
		}
		delete(c.cells, op.Cell)
		return Applied{Cell: op.Cell, Timestamp: t, Attribution: op.Attribution}, true
	}

	if exists && existing.Timestamp > t {
		return Applied{}, false
	}

	color := *op.Color
	c.cells[op.Cell] = Voxel{Color: color, Timestamp: t, Attribution: op.Attribution}
	return Applied{Cell: op.Cell, Color: &color, Timestamp: t, Attribution: op.Attribution}, true
}

// ApplyBatch applies ops in order; later ops observe the effects and clock
// advancement of earlier ones. If at least one op was accepted the version
// is incremented by exactly one. Returns the accepted ops and the version
// after the batch.
func (c *Canvas) ApplyBatch(ops []Op) ([]Applied, int64) {
	var applied []Applied
	for _, op := range ops {
		if a, ok := c.Apply(op); ok {
			applied = append(applied, a)
		}
	}
	if len(applied) > 0 {
		c.version++
	}
	return applied, c.version
}

// Merge re-applies an already stamped operation using its own timestamp.
// The clock is raised to the timestamp but not advanced past it, so
// re-delivering the same Applied twice changes nothing the second time.
// Returns true if the store changed.
func (c *Canvas) Merge(a Applied) bool {
	if !a.Cell.Valid() {
		return false
	}
	c.clock.Observe(a.Timestamp)

	existing, exists := c.cells[a.Cell]
	if exists && existing.Timestamp > a.Timestamp {
		return false
	}

	if a.Color == nil {
		if !exists {
			return false
		}
		delete(c.cells, a.Cell)
		return true
	}

	next := Voxel{Color: *a.Color, Timestamp: a.Timestamp, Attribution: a.Attribution}
	if exists && existing == next {
		return false
	}
	c.cells[a.Cell] = next
	return true
}

// Get returns a copy of the record at cell.
func (c *Canvas) Get(cell CellID) (Voxel, bool) {
	v, ok := c.cells[cell]
	return v, ok
}

// Len returns the number of non-empty cells.
func (c *Canvas) Len() int {
	return len(c.cells)
}

// Version returns the number of effective batches applied so far.
func (c *Canvas) Version() int64 {
	return c.version
}

// ClockValue returns the current logical clock value.
func (c *Canvas) ClockValue() int64 {
	return c.clock.Current()
}

// Pack returns the non-empty cells in ascending cell order.
func (c *Canvas) Pack() PackedState {
	packed := make(PackedState, 0, len(c.cells))
	for cell, v := range c.cells {
		packed = append(packed, PackedVoxel{Cell: cell, Color: v.Color, Timestamp: v.Timestamp})
	}
	sort.Slice(packed, func(i, j int) bool { return packed[i].Cell < packed[j].Cell })
	return packed
}

// State returns a detached copy of the full canvas state.
func (c *Canvas) State() State {
	return State{
		Voxels:  c.Pack(),
		Version: c.version,
		Clock:   c.clock.Current(),
	}
}

// Restore rebuilds a canvas from durable state. Invalid cells are
// dropped; duplicate cells resolve by timestamp. The clock ends at no less
// than the stored clock and the largest stored timestamp.
func Restore(s State) *Canvas {
	c := &Canvas{
		cells:   make(map[CellID]Voxel, len(s.Voxels)),
		clock:   NewClockAt(s.Clock),
		version: s.Version,
	}
	for _, pv := range s.Voxels {
		color := pv.Color
		c.Merge(Applied{Cell: pv.Cell, Color: &color, Timestamp: pv.Timestamp})
	}
	return c
}

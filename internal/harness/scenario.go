package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/voxelroom/internal/canvas"
)

// Scenario defines a conformance test scenario: a fixed set of
// connections, the steps they take, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Connections are joined to the room, in order, before the first step.
	Connections []string `yaml:"connections"`

	// Limits overrides the room defaults. Zero fields keep the default.
	Limits ScenarioLimits `yaml:"limits,omitempty"`

	// Steps run in order; the room drains after each one.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the recorded frames.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioLimits is the YAML form of room.Limits.
type ScenarioLimits struct {
	MaxBatch       int `yaml:"maxBatch,omitempty"`
	BucketCapacity int `yaml:"bucketCapacity,omitempty"`
}

// Send delivers one client frame on a connection. Exactly one of Frame or
// Paint is set.
type Send struct {
	Conn string `yaml:"conn,omitempty"`

	// Frame is sent verbatim, so malformed input can be scripted.
	Frame string `yaml:"frame,omitempty"`

	// Paint generates a set batch.
	Paint *Paint `yaml:"paint,omitempty"`
}

// Paint describes a generated set batch: Count consecutive cells starting
// at From, all painted Color with client clock Clock.
type Paint struct {
	From  int    `yaml:"from"`
	Count int    `yaml:"count"`
	Color string `yaml:"color"`
	Clock int64  `yaml:"clock,omitempty"`
}

// Step is one scenario action. Exactly one field (or the inline Send) is
// set.
type Step struct {
	Send `yaml:",inline"`

	// Burst enqueues several frames before the room processes any.
	Burst []Send `yaml:"burst,omitempty"`

	// Advance moves the fake clock, firing due timers.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Freeze asks the room to freeze.
	Freeze bool `yaml:"freeze,omitempty"`

	// Leave disconnects the named connection.
	Leave string `yaml:"leave,omitempty"`
}

// Assertion validates the final state or the frames one connection saw.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Version is the expected version (version, frozen, persisted).
	Version *int64 `yaml:"version,omitempty"`

	// Cell and Color check one cell; an empty Color means the cell is empty.
	Cell  *int   `yaml:"cell,omitempty"`
	Color string `yaml:"color,omitempty"`

	// Count is the expected number of cells (cell_count, frozen) or frames
	// (received, rejected).
	Count *int `yaml:"count,omitempty"`

	// Conn names the connection (received, rejected).
	Conn string `yaml:"conn,omitempty"`

	// Message is the server message type (received).
	Message string `yaml:"message,omitempty"`

	// Reason is the reject reason (rejected).
	Reason string `yaml:"reason,omitempty"`
}

// Assertion type constants.
const (
	AssertVersion   = "version"
	AssertCell      = "cell"
	AssertCellCount = "cell_count"
	AssertReceived  = "received"
	AssertRejected  = "rejected"
	AssertConverged = "converged"
	AssertFrozen    = "frozen"
	AssertPersisted = "persisted"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Connections) == 0 {
		return fmt.Errorf("connections list is required and must be non-empty")
	}
	for i, name := range s.Connections {
		if name == "" {
			return fmt.Errorf("connections[%d]: name is required", i)
		}
		if slices.Index(s.Connections, name) != i {
			return fmt.Errorf("connections[%d]: duplicate name %q", i, name)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(s, a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step) error {
	kinds := 0
	if step.Conn != "" || step.Frame != "" || step.Paint != nil {
		kinds++
	}
	if len(step.Burst) > 0 {
		kinds++
	}
	if step.Advance != 0 {
		kinds++
	}
	if step.Freeze {
		kinds++
	}
	if step.Leave != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of conn, burst, advance, freeze or leave is required")
	}

	switch {
	case step.Advance < 0:
		return fmt.Errorf("advance must be positive")
	case step.Leave != "":
		return checkConn(s, step.Leave)
	case len(step.Burst) > 0:
		for i, send := range step.Burst {
			if err := validateSend(s, send); err != nil {
				return fmt.Errorf("burst[%d]: %w", i, err)
			}
		}
	case step.Conn != "" || step.Frame != "" || step.Paint != nil:
		return validateSend(s, step.Send)
	}
	return nil
}

func validateSend(s *Scenario, send Send) error {
	if err := checkConn(s, send.Conn); err != nil {
		return err
	}
	if (send.Frame == "") == (send.Paint == nil) {
		return fmt.Errorf("exactly one of frame or paint is required")
	}
	if p := send.Paint; p != nil {
		if p.Count <= 0 {
			return fmt.Errorf("paint: count must be positive")
		}
		if !canvas.CellID(p.From).Valid() || !canvas.CellID(p.From+p.Count-1).Valid() {
			return fmt.Errorf("paint: cells %d..%d out of range", p.From, p.From+p.Count-1)
		}
		if _, err := canvas.ParseColor(p.Color); err != nil {
			return fmt.Errorf("paint: %w", err)
		}
	}
	return nil
}

func checkConn(s *Scenario, name string) error {
	if name == "" {
		return fmt.Errorf("conn is required")
	}
	if !slices.Contains(s.Connections, name) {
		return fmt.Errorf("unknown connection %q", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertVersion, AssertPersisted:
		if a.Version == nil {
			return fmt.Errorf("version is required for %s", a.Type)
		}
	case AssertCell:
		if a.Cell == nil {
			return fmt.Errorf("cell is required for cell")
		}
		if a.Color != "" {
			if _, err := canvas.ParseColor(a.Color); err != nil {
				return err
			}
		}
	case AssertCellCount:
		if a.Count == nil {
			return fmt.Errorf("count is required for cell_count")
		}
	case AssertFrozen:
		if a.Version == nil || a.Count == nil {
			return fmt.Errorf("version and count are required for frozen")
		}
	case AssertReceived:
		if a.Message == "" || a.Count == nil {
			return fmt.Errorf("message and count are required for received")
		}
		return checkConn(s, a.Conn)
	case AssertRejected:
		if a.Reason == "" {
			return fmt.Errorf("reason is required for rejected")
		}
		return checkConn(s, a.Conn)
	case AssertConverged:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

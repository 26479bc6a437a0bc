package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.Len(t, paths, 6)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "scenario_c_tie.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, first.Pass, first.Errors)
	assert.Equal(t, Render(scenario.Name, first), Render(scenario.Name, second))
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: "Assertions that do not hold"
connections: [a]
steps:
  - conn: a
    frame: '{"type":"hello","participantId":"alice"}'
  - conn: a
    paint: {from: 3, count: 2, color: "#ff00ff"}
assertions:
  - type: version
    version: 7
  - type: cell
    cell: 3
    color: "#000000"
  - type: cell_count
    count: 2
  - type: rejected
    conn: a
    reason: rate_limited
  - type: persisted
    version: 1
  - type: frozen
    version: 1
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "version 7")
	assert.Contains(t, result.Errors[1], "cell 3 #ff00ff")
	assert.Contains(t, result.Errors[2], "reason rate_limited")
	assert.Contains(t, result.Errors[3], "Actual: nothing")
	assert.Contains(t, result.Errors[4], "Actual: none")
}

func TestRun_MalformedFrameIsRejected(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: malformed
description: "Garbage and early writes are refused"
connections: [a]
steps:
  - conn: a
    frame: '{"type":"set","ops":[]}'
  - conn: a
    frame: 'not json'
assertions:
  - type: received
    conn: a
    message: reject
    count: 2
  - type: rejected
    conn: a
    reason: not_identified
    count: 1
  - type: rejected
    conn: a
    reason: malformed
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_LeaveUpdatesPresence(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: leave
description: "A departing participant disappears from presence"
connections: [a, b]
steps:
  - conn: a
    frame: '{"type":"hello","participantId":"alice"}'
  - conn: b
    frame: '{"type":"hello","participantId":"bob"}'
  - leave: b
assertions:
  - type: received
    conn: a
    message: presence
    count: 3
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, EventRecv, last.Kind)
	assert.Equal(t, "a", last.Conn)
	assert.Equal(t, `{"type":"presence","players":[{"participantId":"alice"}]}`, last.Text)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	content := `
name: typo
description: "Misspelled key"
connections: [a]
steps:
  - conn: a
    frame: '{"type":"ping","at":1}'
assertion:
  - type: converged
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	base := func(steps, assertions string) string {
		return "name: v\ndescription: d\nconnections: [a, b]\nsteps:\n" + steps + "assertions:\n" + assertions
	}
	converged := "  - type: converged\n"
	hello := "  - conn: a\n    frame: '{\"type\":\"hello\"}'\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "description: d\nconnections: [a]\nsteps:\n" + hello + "assertions:\n" + converged, "name is required"},
		{"no connections", "name: v\ndescription: d\nsteps:\n" + hello + "assertions:\n" + converged, "connections list is required"},
		{"duplicate connection", "name: v\ndescription: d\nconnections: [a, a]\nsteps:\n" + hello + "assertions:\n" + converged, "duplicate name"},
		{"unknown conn", base("  - conn: z\n    frame: '{}'\n", converged), `unknown connection "z"`},
		{"two kinds", base("  - conn: a\n    frame: '{}'\n    freeze: true\n", converged), "exactly one of conn"},
		{"frame and paint", base("  - conn: a\n    frame: '{}'\n    paint: {from: 0, count: 1, color: \"#000000\"}\n", converged), "exactly one of frame or paint"},
		{"paint out of range", base("  - conn: a\n    paint: {from: 7990, count: 20, color: \"#000000\"}\n", converged), "out of range"},
		{"paint bad color", base("  - conn: a\n    paint: {from: 0, count: 1, color: \"red\"}\n", converged), "invalid color"},
		{"leave unknown", base("  - leave: q\n", converged), `unknown connection "q"`},
		{"no assertions", "name: v\ndescription: d\nconnections: [a]\nsteps:\n" + hello, "assertions list is required"},
		{"unknown assertion", base(hello, "  - type: vibes\n"), `unknown assertion type "vibes"`},
		{"version missing", base(hello, "  - type: version\n"), "version is required"},
		{"cell missing", base(hello, "  - type: cell\n"), "cell is required"},
		{"received missing count", base(hello, "  - type: received\n    conn: a\n    message: apply\n"), "message and count are required"},
		{"rejected unknown conn", base(hello, "  - type: rejected\n    conn: z\n    reason: malformed\n"), `unknown connection "z"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q does not mention %q", err, tt.want)
		})
	}
}

func TestParseScenario_Durations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: d
description: d
connections: [a]
steps:
  - advance: 1.5s
assertions:
  - type: converged
`))
	require.NoError(t, err)
	assert.Equal(t, "1.5s", scenario.Steps[0].Advance.String())
}

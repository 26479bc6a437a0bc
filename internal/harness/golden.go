package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render formats a result as the plain-text golden trace:
//
//	scenario: <name>
//	step 1: a -> {"type":"hello",...}
//	  a <- {"type":"welcome",...}
//	step 2: freeze
//	  = frozen at version 1 with 10 cell(s)
//	final: version 1, clock 10
//	  cell 0 #abcdef @1
//
// Frames appear byte for byte as the room encoded them.
func Render(name string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	for _, ev := range result.Trace {
		switch ev.Kind {
		case EventStep:
			fmt.Fprintf(&buf, "step %d: %s\n", ev.Step, ev.Text)
		case EventRecv:
			fmt.Fprintf(&buf, "  %s <- %s\n", ev.Conn, ev.Text)
		case EventNote:
			fmt.Fprintf(&buf, "  = %s\n", ev.Text)
		}
	}
	fmt.Fprintf(&buf, "final: version %d, clock %d\n", result.Final.Version, result.Final.Clock)
	for _, v := range result.Final.Voxels {
		fmt.Fprintf(&buf, "  cell %d %s @%d\n", v.Cell, v.Color, v.Timestamp)
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario, fails t if any assertion failed, and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Render(scenarioName, result))
}

// Package harness provides conformance testing for the room coordinator.
//
// A scenario drives one room through a deterministic sequence of client
// frames, timer advances and freezes, records every frame the room sends
// back, and evaluates assertions against the final state. The room runs
// on the calling goroutine via Drain with a fake clock and synchronous
// durable writes, so two runs of the same scenario produce byte-identical
// traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	connections: [a, b]
//	limits:
//	  maxBatch: 128
//	steps:
//	  - conn: a
//	    frame: '{"type":"hello","participantId":"alice"}'
//	  - conn: a
//	    paint: {from: 0, count: 10, color: "#abcdef"}
//	  - burst:
//	      - {conn: a, frame: '...'}
//	      - {conn: b, frame: '...'}
//	  - advance: 500ms
//	  - freeze: true
//	  - leave: b
//	assertions:
//	  - type: version
//	    equals: 1
//	  - type: cell
//	    cell: 0
//	    color: "#00ff00"
//
// Connections are joined in order before the first step. A burst enqueues
// all of its frames before the room processes any of them.
//
// # Golden Traces
//
// RunWithGolden renders the trace as text and compares it with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

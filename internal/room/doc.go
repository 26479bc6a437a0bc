// Package room implements the per-room coordinator.
//
// A Room owns one canvas and every connection attached to it. All state
// changes happen on a single goroutine (Run, or Drain in tests) that
// consumes events from an unbounded FIFO queue:
//
//  1. Connection readers call Join, Receive and Leave from any goroutine.
//  2. The loop decodes each frame and dispatches on its kind.
//  3. Write batches are capped, rate limited, resolved against the canvas
//     in order, and broadcast to every identified connection as one apply.
//  4. Effective batches (re)start the persistence debounce; the flush
//     snapshots state on the loop and writes it off the loop.
//
// Freeze is an event in the same stream as writes. While its export is
// being written the room rejects writes with room_freezing; afterwards it
// rejects them with room_frozen.
//
// Connection lifecycle: CONNECTED (joined, awaiting hello) → IDENTIFIED
// (welcome sent, receives broadcasts) → CLOSED (removed; bucket and
// presence torn down, presence rebroadcast).
//
// Registry maps room identifiers to running rooms, hydrating them from the
// store on first use and evicting them after an idle period.
package room

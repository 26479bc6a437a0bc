// Package canvas holds the authoritative state of one room: a sparse
// 20x20x20 voxel grid, the logical clock that orders writes to it, and the
// last-write-wins resolver that applies client operations.
//
// # Ownership
//
// A Canvas is not safe for concurrent use. It is owned by exactly one room
// goroutine, which serializes every Apply/ApplyBatch call. Values returned
// to callers (Voxel, Applied, PackedState) are copies; nothing inside the
// Canvas is aliased outside it.
//
// # Ordering
//
// Every accepted write is stamped with Clock.Advance(clientTimestamp). A
// write loses only when the cell already holds a strictly greater
// timestamp; on an exact tie the most recently processed write wins.
//
// # Versioning
//
// Version increases by exactly one per batch that changes at least one
// cell. Batches whose operations are all discarded leave it unchanged.
package canvas

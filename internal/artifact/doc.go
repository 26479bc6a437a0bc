// Package artifact encodes frozen room exports as portable, content
// addressed files.
//
// An artifact is a deterministic CBOR document compressed with zstd:
//
//	zstd( cbor{ format, room, version, frozenAt, voxels: [[cell, color, ts], ...] } )
//
// Encoding the same frozen export always yields the same bytes, so the
// BLAKE3 digest of an artifact identifies the export it holds. The digest
// is served in the Digest header of the export endpoint and printed by
// the CLI.
package artifact

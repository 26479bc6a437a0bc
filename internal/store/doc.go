// Package store provides durable storage for room state and frozen exports.
//
// Every backend implements the small KV interface; Store layers the room
// layout on top of it:
//
//	rooms/<id>/meta    {"version":N,"clock":N}
//	rooms/<id>/voxels  packed state, [[cell,"#rrggbb",timestamp],...]
//	frozen/<id>        {"version":N,"voxels":[...],"frozenAt":"...","roomIdentifier":"<id>"}
//
// meta and voxels are always written together in one atomic batch, so a
// restart re-hydrates from exactly one flush. A frozen export is written
// once and never replaced; its presence marks the room read-only.
//
// # Backends
//
//   - memory: process-local map, the default
//   - sqlite: single file, WAL mode, embedded schema with user_version checks
//   - leveldb: go-datastore keys under a directory
//   - redis: MULTI/EXEC for state, SETNX for frozen exports
//   - postgres: one kv table, upserts and ON CONFLICT DO NOTHING
package store

// Package proto defines the JSON frames exchanged between clients and a
// room coordinator.
//
// Both directions are closed sum types: ClientMessage and ServerMessage
// are sealed interfaces implemented only by the structs in this package,
// so the coordinator's type switch covers every kind and adding a kind is
// a compile-time visible change.
//
// Client → coordinator: hello, set, ping, presence.
// Coordinator → client: welcome, apply, reject, pong, presence.
//
// One JSON object per frame. Any ordered, reliable, message-based duplex
// channel can carry them; internal/server uses WebSocket text frames.
package proto

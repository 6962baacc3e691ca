// Package api implements the HTTP REST API and WebSocket server for plcd.
//
// This package provides:
//   - REST endpoints for the universe state, updates and registry blobs
//   - A WebSocket endpoint whose connections are controller clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # WebSocket protocol
//
// Every frame is a JSON envelope {type, id, timestamp, payload}. On connect
// the server sends, in order, a "dimmers" frame with the full universe
// state and one "registry" frame each for groups and cues. After that:
//
//	dimmers   {origin: "full"|"input", levels: {"1": 255}}
//	registry  {name: "groups"|"cues", data: <base64 blob>}
//
// Clients send "apply", "update", "create", "delete", "persist_defaults" and
// "ping"; each gets a "response", "pong" or "error" reply carrying the same
// id.
//
// # Backpressure
//
// Each connection has a bounded send queue. A client whose queue fills is
// disconnected rather than slowing the controller down.
package api

// Package controller synchronizes the universe, the entity registries and
// every connected client.
//
// A single goroutine (Run) owns all controller state. Client operations,
// updates and live input from the universe driver are queued to it and
// executed one at a time, so each broadcast reflects a fully resolved
// universe. Every state change is broadcast to all registered clients and,
// with autosave enabled, handed to the persister as a snapshot request.
//
// A client that fails a send is unregistered; other clients are unaffected.
package controller

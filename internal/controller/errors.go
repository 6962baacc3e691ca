package controller

import "errors"

// Sentinel errors returned by the controller.
var (
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("controller: not running")

	// ErrUnknownUpdate is returned for an Update whose Kind is not
	// "dimmers", "group" or "cue".
	ErrUnknownUpdate = errors.New("controller: unknown update kind")

	// ErrClientGone is returned by RegisterClient when the client is
	// already unregistered, or failed a send during the join sequence and
	// was dropped.
	ErrClientGone = errors.New("controller: client disconnected")

	// ErrEmptyID is returned by Create for an empty entity id.
	ErrEmptyID = errors.New("controller: entity id is empty")

	// ErrMissingDependency is returned by New when a required dependency is
	// nil.
	ErrMissingDependency = errors.New("controller: missing dependency")
)

package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("persistence: no snapshot")

// ErrStoreClosed is returned when a store is used after Close.
var ErrStoreClosed = errors.New("persistence: store closed")

// Snapshot is one consistent export of both registries.
type Snapshot struct {
	Groups        []byte
	Cues          []byte
	FormatVersion int
	SavedAt       time.Time
}

// Store keeps the most recent Snapshot.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}

// Logger defines the logging interface used by the Saver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry names as stored.
const (
	groupsKey = "groups"
	cuesKey   = "cues"
)

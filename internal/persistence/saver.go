package persistence

import (
	"context"
	"sync"
	"time"
)

// flushTimeout bounds the final write when the saver stops.
const flushTimeout = 5 * time.Second

// Saver writes snapshots to a Store on its own goroutine.
//
// Request never blocks: it records the snapshot as pending and wakes the
// worker. If several requests arrive while a write is in progress only the
// newest is written next.
type Saver struct {
	store  Store
	logger Logger

	mu      sync.Mutex
	pending *Snapshot

	wake chan struct{}
	done chan struct{}
}

// NewSaver creates a saver for store. Call Run to start it.
func NewSaver(store Store) *Saver {
	return &Saver{
		store:  store,
		logger: noopLogger{},
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the saver.
func (s *Saver) SetLogger(logger Logger) {
	s.logger = logger
}

// Request schedules snap to be saved.
func (s *Saver) Request(snap Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run saves pending snapshots until ctx is cancelled, then writes any
// snapshot still pending before returning.
func (s *Saver) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("final snapshot save failed", "error", err)
			}
			cancel()
			return
		case <-s.wake:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("snapshot save failed", "error", err)
			}
		}
	}
}

// Done is closed when Run has returned.
func (s *Saver) Done() <-chan struct{} {
	return s.done
}

// Flush writes the pending snapshot, if any, on the calling goroutine.
// A failed write is not retried; the next Request supersedes it.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()

	if snap == nil {
		return nil
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	start := time.Now()
	if err := s.store.Save(ctx, *snap); err != nil {
		return err
	}
	s.logger.Debug("snapshot saved",
		"groups_bytes", len(snap.Groups),
		"cues_bytes", len(snap.Cues),
		"duration", time.Since(start),
	)
	return nil
}

package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/persistence"
	"github.com/nerrad567/plc-core/internal/universe"
)

// UpdateKind selects how an Update computes the new universe state.
type UpdateKind string

const (
	UpdateDimmers UpdateKind = "dimmers"
	UpdateGroup   UpdateKind = "group"
	UpdateCue     UpdateKind = "cue"
)

// Update is a request to replace the universe state. For UpdateDimmers,
// Dimmers is used verbatim. For UpdateGroup and UpdateCue the entity named
// by ID is resolved at its stored level, or at Level when set, which is
// then stored on the entity.
type Update struct {
	Kind    UpdateKind
	Dimmers dimmer.Levels
	ID      string
	Level   *float64
}

// ApplyUpdate computes the new universe state, broadcasts it to every
// client and requests a snapshot. On error nothing changes.
func (c *Controller) ApplyUpdate(ctx context.Context, u Update) error {
	return c.do(ctx, func() error {
		levels, err := c.compute(u)
		if err != nil {
			return err
		}

		c.universe.Set(levels)
		c.broadcast(DimmerState{Levels: levels.Clone(), Origin: OriginFull})
		c.pushFrame()
		c.requestSnapshot()

		level := 1.0
		if u.Level != nil {
			level = *u.Level
		}
		c.telemetry.WriteUpdate(string(u.Kind), u.ID, level, len(levels))
		c.telemetry.WriteUniverse(string(OriginFull), levels, time.Now())

		c.logger.Debug("update applied", "kind", string(u.Kind), "id", u.ID, "channels", len(levels))
		return nil
	})
}

func (c *Controller) compute(u Update) (dimmer.Levels, error) {
	var entity dimmer.Entity
	switch u.Kind {
	case UpdateDimmers:
		if u.Dimmers == nil {
			return dimmer.Levels{}, nil
		}
		return u.Dimmers.Clone(), nil
	case UpdateGroup:
		if g, ok := c.groups.Get(u.ID); ok {
			entity = g
		}
	case UpdateCue:
		if cue, ok := c.cues.Get(u.ID); ok {
			entity = cue
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdate, u.Kind)
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s %q", dimmer.ErrEntityNotFound, u.Kind, u.ID)
	}

	base := entity.Base()
	if u.Level == nil {
		return base.Resolve()
	}

	previous := base.Level()
	levels, err := base.ResolveAt(*u.Level)
	if err != nil {
		// ResolveAt stores the level before resolving; undo it when the
		// resolve itself failed.
		_ = base.SetLevel(previous)
		return nil, err
	}
	return levels, nil
}

// OnInputChange hands channels changed by live input to the controller.
// It is safe to call from the driver goroutine and blocks only while the
// input queue is full. Empty changes are ignored.
func (c *Controller) OnInputChange(changed dimmer.Levels) {
	if len(changed) == 0 {
		return
	}
	select {
	case c.input <- changed.Clone():
	case <-c.done:
	}
}

func (c *Controller) handleInput(changed dimmer.Levels) {
	if len(changed) == 0 {
		return
	}
	c.universe.ApplyInput(changed)
	c.broadcast(DimmerState{Levels: changed, Origin: OriginInput})
	if c.universe.Mode() != universe.ModeOutput {
		c.pushFrame()
	}
	c.telemetry.WriteUniverse(string(OriginInput), changed, time.Now())
}

func (c *Controller) pushFrame() {
	if c.output != nil {
		c.output.Push(c.universe.Frame())
	}
}

// requestSnapshot exports both registries and hands them to the persister.
func (c *Controller) requestSnapshot() {
	if c.persister == nil {
		return
	}
	snap, err := c.snapshot()
	if err != nil {
		c.logger.Error("snapshot export failed", "error", err)
		return
	}
	c.persister.Request(snap)
}

func (c *Controller) snapshot() (persistence.Snapshot, error) {
	groups, err := c.groups.Export()
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("exporting groups: %w", err)
	}
	cues, err := c.cues.Export()
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("exporting cues: %w", err)
	}
	return persistence.Snapshot{
		Groups:        groups,
		Cues:          cues,
		FormatVersion: c.formatVersion,
		SavedAt:       time.Now().UTC(),
	}, nil
}

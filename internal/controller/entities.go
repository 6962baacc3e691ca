package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/persistence"
)

// Create adds an empty entity, replacing any entity with the same id, and
// broadcasts it. A new cue keeps reading unset attributes from the default
// table until PersistCueDefaults is called for it.
func (c *Controller) Create(ctx context.Context, kind dimmer.Kind, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return c.do(ctx, func() error {
		switch kind {
		case dimmer.KindGroup:
			c.groups.Create(id)
		case dimmer.KindCue:
			c.cues.Create(id)
		default:
			return fmt.Errorf("%w: %q", dimmer.ErrInvalidKind, kind)
		}
		return c.entityChanged(kind, id)
	})
}

// Delete removes an entity and broadcasts the whole registry, since an
// entity blob cannot express a removal. Deleting an unknown id is a no-op.
func (c *Controller) Delete(ctx context.Context, kind dimmer.Kind, id string) error {
	return c.do(ctx, func() error {
		switch kind {
		case dimmer.KindGroup:
			if _, ok := c.groups.Get(id); !ok {
				return nil
			}
			c.groups.Remove(id)
		case dimmer.KindCue:
			if _, ok := c.cues.Get(id); !ok {
				return nil
			}
			c.cues.Remove(id)
		default:
			return fmt.Errorf("%w: %q", dimmer.ErrInvalidKind, kind)
		}

		name := kind.RegistryName()
		data, err := c.exportRegistry(name)
		if err != nil {
			return err
		}
		c.broadcast(RegistrySnapshot{Name: name, Data: data})
		c.requestSnapshot()
		return nil
	})
}

// Mutate applies fn to an existing entity on the controller goroutine and
// broadcasts the result. If fn fails the entity is restored to its prior
// state and the error returned.
func (c *Controller) Mutate(ctx context.Context, kind dimmer.Kind, id string, fn func(dimmer.Entity) error) error {
	return c.do(ctx, func() error {
		entity, err := c.entity(kind, id)
		if err != nil {
			return err
		}
		backup, err := c.exportEntity(kind, id)
		if err != nil {
			return err
		}
		if err := fn(entity); err != nil {
			if _, restoreErr := c.importOne(kind, backup); restoreErr != nil {
				c.logger.Error("restoring entity failed", "kind", string(kind), "id", id, "error", restoreErr)
			}
			return err
		}
		return c.entityChanged(kind, id)
	})
}

// PersistCueDefaults copies the current default of every attribute the cue
// does not set into the cue itself, so later default changes no longer
// affect it.
func (c *Controller) PersistCueDefaults(ctx context.Context, id string) error {
	return c.Mutate(ctx, dimmer.KindCue, id, func(e dimmer.Entity) error {
		cue, ok := e.(*dimmer.Cue)
		if !ok {
			return fmt.Errorf("%w: %s is not a cue", dimmer.ErrInvalidKind, id)
		}
		cue.PersistDefaults()
		return nil
	})
}

// ImportEntity merges an exported entity blob into the registry for kind
// and broadcasts it. It returns the entity's id.
func (c *Controller) ImportEntity(ctx context.Context, kind dimmer.Kind, data []byte) (string, error) {
	var id string
	err := c.do(ctx, func() error {
		entity, err := c.importOne(kind, data)
		if err != nil {
			return err
		}
		id = entity.Base().ID
		return c.entityChanged(kind, id)
	})
	return id, err
}

// ExportRegistry returns the full export of the registry called name
// ("groups" or "cues").
func (c *Controller) ExportRegistry(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := c.do(ctx, func() error {
		var err error
		data, err = c.exportRegistry(name)
		return err
	})
	return data, err
}

// UniverseState returns a copy of the computed universe levels.
func (c *Controller) UniverseState(ctx context.Context) (dimmer.Levels, error) {
	var levels dimmer.Levels
	err := c.do(ctx, func() error {
		levels = c.universe.State()
		return nil
	})
	return levels, err
}

// SetCueDefaults replaces the cue attribute default table.
func (c *Controller) SetCueDefaults(ctx context.Context, values map[string]any) error {
	return c.do(ctx, func() error {
		if err := c.defaults.Replace(values); err != nil {
			return err
		}
		c.logger.Info("cue defaults replaced", "attributes", len(values))
		return nil
	})
}

// Restore replaces both registries from a persisted snapshot. Either both
// are replaced or neither is.
func (c *Controller) Restore(ctx context.Context, snap persistence.Snapshot) error {
	return c.do(ctx, func() error {
		previous, err := c.groups.Export()
		if err != nil {
			return fmt.Errorf("backing up groups: %w", err)
		}
		if err := c.groups.ImportFull(snap.Groups); err != nil {
			return fmt.Errorf("restoring groups: %w", err)
		}
		if err := c.cues.ImportFull(snap.Cues); err != nil {
			if rollbackErr := c.groups.ImportFull(previous); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return fmt.Errorf("restoring cues: %w", err)
		}
		c.logger.Info("registries restored",
			"groups", c.groups.Len(),
			"cues", c.cues.Len(),
			"format_version", snap.FormatVersion,
			"saved_at", snap.SavedAt,
		)
		return nil
	})
}

func (c *Controller) entityChanged(kind dimmer.Kind, id string) error {
	data, err := c.exportEntity(kind, id)
	if err != nil {
		return err
	}
	c.broadcast(RegistrySnapshot{Name: kind.RegistryName(), Data: data})
	c.requestSnapshot()
	return nil
}

func (c *Controller) entity(kind dimmer.Kind, id string) (dimmer.Entity, error) {
	switch kind {
	case dimmer.KindGroup:
		if g, ok := c.groups.Get(id); ok {
			return g, nil
		}
	case dimmer.KindCue:
		if cue, ok := c.cues.Get(id); ok {
			return cue, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", dimmer.ErrInvalidKind, kind)
	}
	return nil, fmt.Errorf("%w: %s %q", dimmer.ErrEntityNotFound, kind, id)
}

func (c *Controller) exportEntity(kind dimmer.Kind, id string) ([]byte, error) {
	switch kind {
	case dimmer.KindGroup:
		return c.groups.ExportEntity(id)
	case dimmer.KindCue:
		return c.cues.ExportEntity(id)
	default:
		return nil, fmt.Errorf("%w: %q", dimmer.ErrInvalidKind, kind)
	}
}

func (c *Controller) importOne(kind dimmer.Kind, data []byte) (dimmer.Entity, error) {
	switch kind {
	case dimmer.KindGroup:
		g, err := c.groups.ImportOne(data)
		if err != nil {
			return nil, err
		}
		return g, nil
	case dimmer.KindCue:
		cue, err := c.cues.ImportOne(data)
		if err != nil {
			return nil, err
		}
		return cue, nil
	default:
		return nil, fmt.Errorf("%w: %q", dimmer.ErrInvalidKind, kind)
	}
}

func (c *Controller) exportRegistry(name string) ([]byte, error) {
	switch name {
	case c.groups.Name():
		return c.groups.Export()
	case c.cues.Name():
		return c.cues.Export()
	default:
		return nil, fmt.Errorf("%w: registry %q", dimmer.ErrInvalidKind, name)
	}
}

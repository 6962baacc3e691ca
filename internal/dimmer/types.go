package dimmer

import (
	"fmt"
	"sort"
)

// Kind identifies which registry an entity lives in.
type Kind string

// Entity kinds.
const (
	KindGroup Kind = "group"
	KindCue   Kind = "cue"
)

// Registry names used on the wire and in storage.
const (
	GroupsName = "groups"
	CuesName   = "cues"
)

// RegistryName returns the plural name of the registry holding this kind.
func (k Kind) RegistryName() string {
	switch k {
	case KindGroup:
		return GroupsName
	case KindCue:
		return CuesName
	default:
		return ""
	}
}

// ParseKind accepts either the singular kind or the registry name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindGroup), GroupsName:
		return KindGroup, nil
	case string(KindCue), CuesName:
		return KindCue, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Entity is implemented by *Group and *Cue.
type Entity interface {
	Base() *DimmerGroup
	Kind() Kind
	SetChannel(ch int, level float64) error

	toDoc() entityDoc
}

// lookupFunc finds a sibling entity by id. It returns nil for unknown ids.
type lookupFunc func(id string) *DimmerGroup

// DimmerGroup holds the state shared by groups and cues: explicit channel
// overrides, weak references to sibling entities and a master level.
//
// Nested references are stored by id and resolved through the owning
// registry at mix time, so an entity never holds a pointer to another.
type DimmerGroup struct {
	ID   string
	Name string

	level    float64
	channels map[int]float64
	nested   map[string]uint8
	lookup   lookupFunc
}

func newDimmerGroup(id string) DimmerGroup {
	return DimmerGroup{
		ID:       id,
		channels: make(map[int]float64),
		nested:   make(map[string]uint8),
	}
}

// Base returns the shared dimmer state.
func (g *DimmerGroup) Base() *DimmerGroup { return g }

// Level returns the stored master level.
func (g *DimmerGroup) Level() float64 { return g.level }

// SetLevel stores a new master level.
func (g *DimmerGroup) SetLevel(level float64) error {
	if err := ValidateLevel(level); err != nil {
		return err
	}
	g.level = level
	return nil
}

// Channel returns the explicit override for ch.
func (g *DimmerGroup) Channel(ch int) (float64, bool) {
	v, ok := g.channels[ch]
	return v, ok
}

// Channels returns a copy of the explicit overrides.
func (g *DimmerGroup) Channels() map[int]float64 {
	out := make(map[int]float64, len(g.channels))
	for ch, v := range g.channels {
		out[ch] = v
	}
	return out
}

// SetToZero stores an explicit zero for ch, even on a group that discards zeros.
func (g *DimmerGroup) SetToZero(ch int) {
	g.channels[ch] = 0
}

// RemoveChannel deletes the override for ch. Absent channels are ignored.
func (g *DimmerGroup) RemoveChannel(ch int) {
	delete(g.channels, ch)
}

// Nested returns a copy of the nested references in device units.
func (g *DimmerGroup) Nested() map[string]uint8 {
	out := make(map[string]uint8, len(g.nested))
	for id, v := range g.nested {
		out[id] = v
	}
	return out
}

// NestedIDs returns the referenced ids in sorted order.
func (g *DimmerGroup) NestedIDs() []string {
	ids := make([]string, 0, len(g.nested))
	for id := range g.nested {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetNested references another entity at a normalized intensity.
func (g *DimmerGroup) SetNested(ref string, level float64) error {
	if err := ValidateLevel(level); err != nil {
		return err
	}
	g.nested[ref] = ToDevice(level)
	return nil
}

// SetNestedDevice references another entity at a raw device intensity.
func (g *DimmerGroup) SetNestedDevice(ref string, intensity int) error {
	if err := ValidateDevice(intensity); err != nil {
		return err
	}
	g.nested[ref] = uint8(intensity)
	return nil
}

// RemoveNested drops a reference. Absent references are ignored.
func (g *DimmerGroup) RemoveNested(ref string) {
	delete(g.nested, ref)
}

func (g *DimmerGroup) setChannel(ch int, level float64) error {
	if err := ValidateLevel(level); err != nil {
		return err
	}
	g.channels[ch] = level
	return nil
}

func (g *DimmerGroup) baseDoc() entityDoc {
	return entityDoc{
		ID:       g.ID,
		Name:     g.Name,
		Level:    g.level,
		Channels: g.Channels(),
		Nested:   g.Nested(),
	}
}

// Group is a DimmerGroup that keeps its channel map sparse: assigning
// exactly zero removes the channel unless KeepZeros is set.
type Group struct {
	DimmerGroup
	KeepZeros bool
}

// NewGroup returns an unattached group with master level 0.
func NewGroup(id string) *Group {
	return &Group{DimmerGroup: newDimmerGroup(id)}
}

// Kind implements Entity.
func (g *Group) Kind() Kind { return KindGroup }

// SetChannel sets an explicit override.
func (g *Group) SetChannel(ch int, level float64) error {
	if level == 0 && !g.KeepZeros {
		delete(g.channels, ch)
		return nil
	}
	return g.setChannel(ch, level)
}

func (g *Group) toDoc() entityDoc {
	doc := g.baseDoc()
	doc.KeepZeros = g.KeepZeros
	return doc
}

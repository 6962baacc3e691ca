package dimmer

import (
	"fmt"
	"sort"
)

// Registry is a keyed container of one entity kind with snapshot export and
// import. Entities in a registry resolve nested references against the same
// registry.
//
// Thread Safety:
//   - Not safe for concurrent use. The controller owns its registries and
//     touches them only from its event loop.
type Registry[E Entity] struct {
	kind    Kind
	codec   *Codec
	items   map[string]E
	newFn   func(id string) E
	fromDoc func(entityDoc) E
}

// NewGroupRegistry returns an empty group registry.
func NewGroupRegistry(codec *Codec) *Registry[*Group] {
	return newRegistry(KindGroup, codec,
		NewGroup,
		func(d entityDoc) *Group {
			g := NewGroup(d.ID)
			d.fill(&g.DimmerGroup)
			g.KeepZeros = d.KeepZeros
			return g
		},
	)
}

// NewCueRegistry returns an empty cue registry whose cues fall back to defaults.
func NewCueRegistry(codec *Codec, defaults *Defaults) *Registry[*Cue] {
	return newRegistry(KindCue, codec,
		func(id string) *Cue { return NewCue(id, defaults) },
		func(d entityDoc) *Cue {
			c := NewCue(d.ID, defaults)
			d.fill(&c.DimmerGroup)
			for k, v := range d.Meta {
				c.meta[k] = v
			}
			return c
		},
	)
}

func newRegistry[E Entity](kind Kind, codec *Codec, newFn func(string) E, fromDoc func(entityDoc) E) *Registry[E] {
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Registry[E]{
		kind:    kind,
		codec:   codec,
		items:   make(map[string]E),
		newFn:   newFn,
		fromDoc: fromDoc,
	}
}

// Kind returns the entity kind stored here.
func (r *Registry[E]) Kind() Kind { return r.kind }

// Name returns the registry name ("groups" or "cues").
func (r *Registry[E]) Name() string { return r.kind.RegistryName() }

// Create inserts a fresh entity at id, replacing any existing one.
func (r *Registry[E]) Create(id string) E {
	e := r.newFn(id)
	r.put(e)
	return e
}

// Get returns the entity at id.
func (r *Registry[E]) Get(id string) (E, bool) {
	e, ok := r.items[id]
	return e, ok
}

// Remove deletes id. Unknown ids are ignored.
func (r *Registry[E]) Remove(id string) {
	delete(r.items, id)
}

// IDs returns every id in sorted order.
func (r *Registry[E]) IDs() []string {
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of entities.
func (r *Registry[E]) Len() int { return len(r.items) }

// Export serializes the whole registry.
func (r *Registry[E]) Export() ([]byte, error) {
	doc := registryDoc{Kind: r.kind, Entities: make([]entityDoc, 0, len(r.items))}
	for _, id := range r.IDs() {
		doc.Entities = append(doc.Entities, r.items[id].toDoc())
	}
	return r.codec.encode(scopeRegistry, doc)
}

// ExportEntity serializes a single entity for ImportOne.
func (r *Registry[E]) ExportEntity(id string) ([]byte, error) {
	e, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrEntityNotFound, r.kind, id)
	}
	return r.codec.encode(scopeEntity, entityEnvelope{Kind: r.kind, Entity: e.toDoc()})
}

// ImportFull replaces the registry contents with a snapshot from Export.
// On error the registry is left as it was.
func (r *Registry[E]) ImportFull(data []byte) error {
	var doc registryDoc
	if err := r.codec.decode(data, scopeRegistry, &doc); err != nil {
		return err
	}
	if doc.Kind != r.kind {
		return deserializationErr(fmt.Sprintf("snapshot holds %q, registry holds %q", doc.Kind, r.kind), nil)
	}

	next := make(map[string]E, len(doc.Entities))
	for i := range doc.Entities {
		d := &doc.Entities[i]
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := next[d.ID]; dup {
			return deserializationErr("duplicate id "+d.ID, nil)
		}
		next[d.ID] = r.fromDoc(*d)
	}

	r.items = next
	for _, e := range next {
		e.Base().lookup = r.lookup
	}
	return nil
}

// ImportOne merges a single entity from ExportEntity, replacing any entity
// with the same id, and returns it.
func (r *Registry[E]) ImportOne(data []byte) (E, error) {
	var zero E
	var env entityEnvelope
	if err := r.codec.decode(data, scopeEntity, &env); err != nil {
		return zero, err
	}
	if env.Kind != r.kind {
		return zero, deserializationErr(fmt.Sprintf("entity is %q, registry holds %q", env.Kind, r.kind), nil)
	}
	if err := env.Entity.validate(); err != nil {
		return zero, err
	}
	e := r.fromDoc(env.Entity)
	r.put(e)
	return e, nil
}

func (r *Registry[E]) put(e E) {
	e.Base().lookup = r.lookup
	r.items[e.Base().ID] = e
}

func (r *Registry[E]) lookup(id string) *DimmerGroup {
	e, ok := r.items[id]
	if !ok {
		return nil
	}
	return e.Base()
}

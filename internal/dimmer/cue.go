package dimmer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Cue timing attribute names.
const (
	AttrUp         = "up"
	AttrDown       = "down"
	AttrUpWait     = "upwait"
	AttrDownWait   = "downwait"
	AttrFollow     = "follow"
	AttrFollowTime = "followtime"
)

// CueAttributes lists the timing attributes every cue understands.
var CueAttributes = []string{AttrUp, AttrDown, AttrUpWait, AttrDownWait, AttrFollow, AttrFollowTime}

const cueDomain = "cue"

// Defaults is the shared fallback table for cue attributes.
// It may be replaced while cues hold a reference to it.
type Defaults struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewDefaults builds a table from loosely typed values such as decoded YAML.
func NewDefaults(values map[string]any) (*Defaults, error) {
	d := &Defaults{}
	if err := d.Replace(values); err != nil {
		return nil, err
	}
	return d, nil
}

// Lookup returns the default for name.
func (d *Defaults) Lookup(name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[name]
	return v, ok
}

// Replace swaps the whole table. Invalid values leave the table unchanged.
func (d *Defaults) Replace(values map[string]any) error {
	next := make(map[string]any, len(values))
	for name, raw := range values {
		v, err := normalizeAttr(name, raw)
		if err != nil {
			return err
		}
		next[name] = v
	}
	d.mu.Lock()
	d.values = next
	d.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the table.
func (d *Defaults) Snapshot() map[string]any {
	if d == nil {
		return map[string]any{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// normalizeAttr accepts numbers, bools and strings; integers become float64.
func normalizeAttr(name string, v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s is not finite", ErrInvalidAttribute, name)
		}
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool, string:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidAttribute, name, v)
	}
}

// Cue is a DimmerGroup that stores zero levels explicitly and carries
// timing metadata that falls back to a shared Defaults table.
type Cue struct {
	DimmerGroup

	meta     map[string]any
	defaults *Defaults
}

// NewCue returns an unattached cue reading fallbacks from defaults.
func NewCue(id string, defaults *Defaults) *Cue {
	return &Cue{
		DimmerGroup: newDimmerGroup(id),
		meta:        make(map[string]any),
		defaults:    defaults,
	}
}

// Kind implements Entity.
func (c *Cue) Kind() Kind { return KindCue }

// SetChannel sets an explicit override. Zero is kept.
func (c *Cue) SetChannel(ch int, level float64) error {
	return c.setChannel(ch, level)
}

// Attr returns the local value for name, else the default.
func (c *Cue) Attr(name string) (any, error) {
	if v, ok := c.meta[name]; ok {
		return v, nil
	}
	if v, ok := c.defaults.Lookup(name); ok {
		return v, nil
	}
	return nil, &MissingDefaultError{Domain: cueDomain, Attribute: name}
}

// Float reads a numeric attribute.
func (c *Cue) Float(name string) (float64, error) {
	v, err := c.Attr(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T, not a number", ErrInvalidAttribute, name, v)
	}
	return f, nil
}

// Bool reads a boolean attribute.
func (c *Cue) Bool(name string) (bool, error) {
	v, err := c.Attr(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, not a bool", ErrInvalidAttribute, name, v)
	}
	return b, nil
}

// SetAttr stores a local attribute value.
func (c *Cue) SetAttr(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAttribute)
	}
	v, err := normalizeAttr(name, value)
	if err != nil {
		return err
	}
	c.meta[name] = v
	return nil
}

// DeleteAttr removes a local value so reads fall back to the default again.
func (c *Cue) DeleteAttr(name string) {
	delete(c.meta, name)
}

// Meta returns a copy of the local attribute values.
func (c *Cue) Meta() map[string]any {
	out := make(map[string]any, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	return out
}

// MetaKeys returns the local attribute names in sorted order.
func (c *Cue) MetaKeys() []string {
	keys := make([]string, 0, len(c.meta))
	for k := range c.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PersistDefaults copies every default not already set locally into meta,
// so later changes to the default table no longer affect this cue.
func (c *Cue) PersistDefaults() {
	for name, v := range c.defaults.Snapshot() {
		if _, ok := c.meta[name]; !ok {
			c.meta[name] = v
		}
	}
}

// CueTiming is the resolved fade and follow behaviour of a cue.
type CueTiming struct {
	Up         time.Duration
	Down       time.Duration
	UpWait     time.Duration
	DownWait   time.Duration
	Follow     bool
	FollowTime time.Duration
}

// Timing resolves all timing attributes. Durations are stored in seconds.
func (c *Cue) Timing() (CueTiming, error) {
	var t CueTiming
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{AttrUp, &t.Up},
		{AttrDown, &t.Down},
		{AttrUpWait, &t.UpWait},
		{AttrDownWait, &t.DownWait},
		{AttrFollowTime, &t.FollowTime},
	}
	for _, d := range durations {
		secs, err := c.Float(d.name)
		if err != nil {
			return CueTiming{}, err
		}
		*d.dst = time.Duration(secs * float64(time.Second))
	}
	follow, err := c.Bool(AttrFollow)
	if err != nil {
		return CueTiming{}, err
	}
	t.Follow = follow
	return t, nil
}

func (c *Cue) toDoc() entityDoc {
	doc := c.baseDoc()
	doc.Meta = c.Meta()
	return doc
}

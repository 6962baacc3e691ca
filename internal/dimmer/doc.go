// Package dimmer holds the lighting entity model and the mixing resolver.
//
// Groups and cues are both DimmerGroups: a set of explicit channel
// overrides, a set of weak references to sibling entities by id, and a
// normalized master level. Resolving an entity mixes it down to a flat map
// of channel to device level (0-255):
//
//  1. every nested reference is resolved at its intensity and the results
//     are combined highest-takes-precedence,
//  2. explicit channel overrides replace the nested value for that channel,
//  3. every value is scaled by the master level and rounded.
//
// Groups keep their channel map sparse (assigning zero removes a channel
// unless KeepZeros is set). Cues keep zeros and carry timing metadata that
// falls back to a shared Defaults table.
//
// Registries store one kind of entity and export or import versioned
// binary snapshots (CBOR, optionally zstd-compressed). Imports are all or
// nothing.
//
// Usage:
//
//	groups := dimmer.NewGroupRegistry(dimmer.DefaultCodec())
//	wash := groups.Create("wash")
//	_ = wash.SetChannel(5, 1.0)
//	levels, err := wash.ResolveAt(0.5) // {5: 128}
package dimmer

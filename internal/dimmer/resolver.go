package dimmer

// Resolve mixes the entity down to device levels at its stored master level.
//
// Nested references are combined highest-takes-precedence, explicit channel
// overrides then replace whatever the nested mix produced for that channel,
// and the result is scaled by the master level. Channels nothing touches are
// absent from the result.
//
// Returns:
//   - Levels: channel to device level
//   - error: *CyclicReferenceError if nested references loop back
func (g *DimmerGroup) Resolve() (Levels, error) {
	return g.mix(g.level, nil)
}

// ResolveAt stores level as the new master level, then resolves.
func (g *DimmerGroup) ResolveAt(level float64) (Levels, error) {
	if err := g.SetLevel(level); err != nil {
		return nil, err
	}
	return g.Resolve()
}

// mix resolves at the given master level without storing it. Nested
// entities are mixed at their reference intensity, leaving their own stored
// level untouched.
func (g *DimmerGroup) mix(level float64, path []string) (Levels, error) {
	for i, id := range path {
		if id == g.ID {
			loop := append(append([]string{}, path[i:]...), g.ID)
			return nil, &CyclicReferenceError{Path: loop}
		}
	}
	path = append(path[:len(path):len(path)], g.ID)

	combined := make(map[int]float64, len(g.channels))
	if g.lookup != nil {
		for ref, intensity := range g.nested {
			child := g.lookup(ref)
			if child == nil {
				continue
			}
			out, err := child.mix(ToNormalized(intensity), path)
			if err != nil {
				return nil, err
			}
			for ch, dev := range out {
				v := ToNormalized(dev)
				if cur, ok := combined[ch]; !ok || v > cur {
					combined[ch] = v
				}
			}
		}
	}

	for ch, v := range g.channels {
		combined[ch] = v
	}

	result := make(Levels, len(combined))
	for ch, v := range combined {
		result[ch] = ToDevice(v * level)
	}
	return result, nil
}

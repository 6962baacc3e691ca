package dimmer

import (
	"errors"
	"testing"
)

func newGroups(t *testing.T) *Registry[*Group] {
	t.Helper()
	return NewGroupRegistry(DefaultCodec())
}

func mustSet(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustResolve(t *testing.T, g *DimmerGroup) Levels {
	t.Helper()
	out, err := g.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return out
}

func TestResolve_SingleOverride(t *testing.T) {
	groups := newGroups(t)
	g1 := groups.Create("g1")
	mustSet(t, g1.SetChannel(5, 1.0))
	mustSet(t, g1.SetLevel(1.0))

	got := mustResolve(t, &g1.DimmerGroup)
	want := Levels{5: 255}
	if !got.Equal(want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_NestedScaledByIntensity(t *testing.T) {
	tests := []struct {
		name      string
		intensity int
		want      uint8
	}{
		// 0.5 at full reference intensity
		{"full intensity yields channel level", 255, 128},
		// Channel level and intensity multiply: 0.5 * 128/255 * 255, not 128.
		{"half intensity compounds with channel level", 128, 64},
		{"zero intensity", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := newGroups(t)
			g2 := groups.Create("g2")
			mustSet(t, g2.SetChannel(5, 0.5))
			mustSet(t, g2.SetLevel(1.0))

			g1 := groups.Create("g1")
			mustSet(t, g1.SetNestedDevice("g2", tt.intensity))
			mustSet(t, g1.SetLevel(1.0))

			got := mustResolve(t, &g1.DimmerGroup)
			if got[5] != tt.want {
				t.Errorf("channel 5 = %d, want %d", got[5], tt.want)
			}
			if g2.Level() != 1.0 {
				t.Errorf("nested resolve changed g2 level to %v", g2.Level())
			}
		})
	}
}

func TestResolve_OverrideReplacesNested(t *testing.T) {
	groups := newGroups(t)
	g2 := groups.Create("g2")
	mustSet(t, g2.SetChannel(5, 0.5))
	mustSet(t, g2.SetChannel(6, 0.4))
	mustSet(t, g2.SetLevel(1.0))

	g1 := groups.Create("g1")
	mustSet(t, g1.SetNestedDevice("g2", 255))
	mustSet(t, g1.SetChannel(5, 1.0))
	mustSet(t, g1.SetLevel(1.0))

	got := mustResolve(t, &g1.DimmerGroup)
	want := Levels{5: 255, 6: 102}
	if !got.Equal(want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_OverrideWinsEvenWhenLower(t *testing.T) {
	groups := newGroups(t)
	bright := groups.Create("bright")
	mustSet(t, bright.SetChannel(1, 1.0))
	mustSet(t, bright.SetLevel(1.0))

	g := groups.Create("g")
	mustSet(t, g.SetNestedDevice("bright", 255))
	g.SetToZero(1)
	mustSet(t, g.SetLevel(1.0))

	got := mustResolve(t, &g.DimmerGroup)
	if v, ok := got[1]; !ok || v != 0 {
		t.Errorf("channel 1 = %d (present %v), want explicit 0", v, ok)
	}
}

func TestResolve_HTPTakesMaximum(t *testing.T) {
	groups := newGroups(t)
	a := groups.Create("a")
	mustSet(t, a.SetChannel(1, 0.4))
	mustSet(t, a.SetChannel(2, 0.9))
	mustSet(t, a.SetLevel(1.0))

	b := groups.Create("b")
	mustSet(t, b.SetChannel(1, 0.6))
	mustSet(t, b.SetChannel(2, 0.2))
	mustSet(t, b.SetLevel(1.0))

	mix := groups.Create("mix")
	mustSet(t, mix.SetNestedDevice("a", 255))
	mustSet(t, mix.SetNestedDevice("b", 255))
	mustSet(t, mix.SetLevel(1.0))

	got := mustResolve(t, &mix.DimmerGroup)
	want := Levels{1: ToDevice(0.6), 2: ToDevice(0.9)}
	if !got.Equal(want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveAt_StoresLevel(t *testing.T) {
	groups := newGroups(t)
	g := groups.Create("g")
	mustSet(t, g.SetChannel(3, 1.0))

	got, err := g.ResolveAt(0.5)
	if err != nil {
		t.Fatalf("ResolveAt() error = %v", err)
	}
	if got[3] != 128 {
		t.Errorf("channel 3 = %d, want 128", got[3])
	}
	if g.Level() != 0.5 {
		t.Errorf("Level() = %v, want 0.5", g.Level())
	}

	if _, err := g.ResolveAt(1.5); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("ResolveAt(1.5) error = %v, want ErrInvalidLevel", err)
	}
	if g.Level() != 0.5 {
		t.Errorf("failed ResolveAt changed level to %v", g.Level())
	}
}

func TestResolve_NewGroupIsDark(t *testing.T) {
	groups := newGroups(t)
	g := groups.Create("g")
	mustSet(t, g.SetChannel(1, 1.0))

	got := mustResolve(t, &g.DimmerGroup)
	if got[1] != 0 {
		t.Errorf("channel 1 = %d, want 0 at default master level", got[1])
	}
}

func TestResolve_DanglingReferenceIgnored(t *testing.T) {
	groups := newGroups(t)
	g := groups.Create("g")
	mustSet(t, g.SetNestedDevice("missing", 255))
	mustSet(t, g.SetChannel(2, 1.0))
	mustSet(t, g.SetLevel(1.0))

	got := mustResolve(t, &g.DimmerGroup)
	want := Levels{2: 255}
	if !got.Equal(want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_CyclicReference(t *testing.T) {
	tests := []struct {
		name  string
		build func(r *Registry[*Group]) *Group
	}{
		{
			name: "self",
			build: func(r *Registry[*Group]) *Group {
				a := r.Create("a")
				_ = a.SetNestedDevice("a", 255)
				return a
			},
		},
		{
			name: "three step loop",
			build: func(r *Registry[*Group]) *Group {
				a, b, c := r.Create("a"), r.Create("b"), r.Create("c")
				_ = a.SetNestedDevice("b", 255)
				_ = b.SetNestedDevice("c", 255)
				_ = c.SetNestedDevice("a", 255)
				return a
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := tt.build(newGroups(t))
			_, err := start.Resolve()
			if !errors.Is(err, ErrCyclicReference) {
				t.Fatalf("Resolve() error = %v, want ErrCyclicReference", err)
			}
			var cyc *CyclicReferenceError
			if !errors.As(err, &cyc) || len(cyc.Path) < 2 || cyc.Path[0] != cyc.Path[len(cyc.Path)-1] {
				t.Errorf("cycle path = %v, want a closed loop", cyc)
			}
		})
	}
}

func TestResolve_DiamondIsNotACycle(t *testing.T) {
	groups := newGroups(t)
	leaf := groups.Create("leaf")
	mustSet(t, leaf.SetChannel(1, 1.0))
	left, right := groups.Create("left"), groups.Create("right")
	mustSet(t, left.SetNestedDevice("leaf", 255))
	mustSet(t, right.SetNestedDevice("leaf", 255))
	top := groups.Create("top")
	mustSet(t, top.SetNestedDevice("left", 255))
	mustSet(t, top.SetNestedDevice("right", 255))
	mustSet(t, top.SetLevel(1.0))

	got := mustResolve(t, &top.DimmerGroup)
	if got[1] != 255 {
		t.Errorf("channel 1 = %d, want 255", got[1])
	}
}

package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/persistence"
	"github.com/nerrad567/plc-core/internal/universe"
)

func lastSnapshot(t *testing.T, c *fakeClient) RegistrySnapshot {
	t.Helper()
	msgs := c.messages()
	if len(msgs) == 0 {
		t.Fatal("client received nothing")
	}
	snap, ok := msgs[len(msgs)-1].(RegistrySnapshot)
	if !ok {
		t.Fatalf("last message = %T, want RegistrySnapshot", msgs[len(msgs)-1])
	}
	return snap
}

func TestCreate_BroadcastsEntity(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, nil)
	ctx := context.Background()
	client := newClient("c")
	h.register(t, client)

	if err := h.ctrl.Create(ctx, dimmer.KindCue, "c1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	snap := lastSnapshot(t, client)
	if snap.Name != dimmer.CuesName {
		t.Errorf("snapshot name = %q, want cues", snap.Name)
	}
	peer := dimmer.NewCueRegistry(nil, h.defaults)
	cue, err := peer.ImportOne(snap.Data)
	if err != nil {
		t.Fatalf("entity blob does not import: %v", err)
	}
	// New cues read through to the default table.
	if len(cue.Meta()) != 0 {
		t.Errorf("cue meta = %v, want empty", cue.Meta())
	}
	if len(h.persister.requests()) != 1 {
		t.Error("Create() did not request a snapshot")
	}

	if err := h.ctrl.Create(ctx, dimmer.KindGroup, ""); !errors.Is(err, ErrEmptyID) {
		t.Errorf("Create(empty) error = %v, want ErrEmptyID", err)
	}
	if err := h.ctrl.Create(ctx, dimmer.Kind("scene"), "s"); !errors.Is(err, dimmer.ErrInvalidKind) {
		t.Errorf("Create(scene) error = %v, want ErrInvalidKind", err)
	}
}

func cueAttr(t *testing.T, h *harness, id, attr string) float64 {
	t.Helper()
	var got float64
	err := h.ctrl.Mutate(context.Background(), dimmer.KindCue, id, func(e dimmer.Entity) error {
		var err error
		got, err = e.(*dimmer.Cue).Float(attr)
		return err
	})
	if err != nil {
		t.Fatalf("reading %s.%s: %v", id, attr, err)
	}
	return got
}

func TestCreate_CueFollowsDefaultChanges(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, nil)
	ctx := context.Background()

	if err := h.ctrl.Create(ctx, dimmer.KindCue, "c1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := cueAttr(t, h, "c1", "up"); got != 3 {
		t.Fatalf("up = %v, want 3", got)
	}
	if err := h.ctrl.SetCueDefaults(ctx, map[string]any{"up": 9.0}); err != nil {
		t.Fatalf("SetCueDefaults() error = %v", err)
	}
	if got := cueAttr(t, h, "c1", "up"); got != 9 {
		t.Errorf("up after default change = %v, want 9", got)
	}
}

func TestPersistCueDefaults(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, nil)
	ctx := context.Background()
	client := newClient("c")
	h.register(t, client)

	if err := h.ctrl.Create(ctx, dimmer.KindCue, "c1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.ctrl.PersistCueDefaults(ctx, "c1"); err != nil {
		t.Fatalf("PersistCueDefaults() error = %v", err)
	}

	peer := dimmer.NewCueRegistry(nil, h.defaults)
	cue, err := peer.ImportOne(lastSnapshot(t, client).Data)
	if err != nil {
		t.Fatal(err)
	}
	if up, ok := cue.Meta()["up"]; !ok || up != 3.0 {
		t.Errorf("broadcast cue meta = %v, want up=3", cue.Meta())
	}

	if err := h.ctrl.SetCueDefaults(ctx, map[string]any{"up": 9.0}); err != nil {
		t.Fatalf("SetCueDefaults() error = %v", err)
	}
	if got := cueAttr(t, h, "c1", "up"); got != 3 {
		t.Errorf("up after default change = %v, want persisted 3", got)
	}

	if err := h.ctrl.PersistCueDefaults(ctx, "missing"); !errors.Is(err, dimmer.ErrEntityNotFound) {
		t.Errorf("PersistCueDefaults(missing) error = %v, want ErrEntityNotFound", err)
	}
}

func TestMutate(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, func(h *harness) {
		_ = h.groups.Create("g1").SetChannel(1, 0.5)
	})
	ctx := context.Background()
	client := newClient("c")
	h.register(t, client)

	err := h.ctrl.Mutate(ctx, dimmer.KindGroup, "g1", func(e dimmer.Entity) error {
		return e.SetChannel(2, 1)
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	peer := dimmer.NewGroupRegistry(nil)
	g, err := peer.ImportOne(lastSnapshot(t, client).Data)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Channels(); got[1] != 0.5 || got[2] != 1 {
		t.Errorf("broadcast channels = %v", got)
	}

	client.reset()
	err = h.ctrl.Mutate(ctx, dimmer.KindGroup, "g1", func(e dimmer.Entity) error {
		_ = e.SetChannel(3, 1)
		return e.SetChannel(4, 7)
	})
	if !errors.Is(err, dimmer.ErrInvalidLevel) {
		t.Fatalf("Mutate() error = %v, want ErrInvalidLevel", err)
	}
	if n := len(client.messages()); n != 0 {
		t.Errorf("failed Mutate broadcast %d messages", n)
	}
	_ = h.ctrl.Mutate(ctx, dimmer.KindGroup, "g1", func(e dimmer.Entity) error {
		if _, ok := e.Base().Channel(3); ok {
			t.Error("failed Mutate left channel 3 behind")
		}
		return nil
	})

	if err := h.ctrl.Mutate(ctx, dimmer.KindCue, "nope", func(dimmer.Entity) error { return nil }); !errors.Is(err, dimmer.ErrEntityNotFound) {
		t.Errorf("Mutate(missing) error = %v, want ErrEntityNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, func(h *harness) {
		h.groups.Create("g1")
		h.groups.Create("g2")
	})
	ctx := context.Background()
	client := newClient("c")
	h.register(t, client)

	if err := h.ctrl.Delete(ctx, dimmer.KindGroup, "g1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	snap := lastSnapshot(t, client)
	peer := dimmer.NewGroupRegistry(nil)
	if err := peer.ImportFull(snap.Data); err != nil {
		t.Fatalf("registry blob does not import: %v", err)
	}
	if ids := peer.IDs(); len(ids) != 1 || ids[0] != "g2" {
		t.Errorf("broadcast registry ids = %v, want [g2]", ids)
	}

	client.reset()
	if err := h.ctrl.Delete(ctx, dimmer.KindGroup, "g1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if n := len(client.messages()); n != 0 {
		t.Errorf("no-op Delete broadcast %d messages", n)
	}
}

func TestImportEntity(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, nil)
	ctx := context.Background()
	client := newClient("c")
	h.register(t, client)

	source := dimmer.NewGroupRegistry(nil)
	_ = source.Create("wash").SetChannel(8, 1)
	blob, err := source.ExportEntity("wash")
	if err != nil {
		t.Fatal(err)
	}

	id, err := h.ctrl.ImportEntity(ctx, dimmer.KindGroup, blob)
	if err != nil || id != "wash" {
		t.Fatalf("ImportEntity() = %q, %v", id, err)
	}
	if snap := lastSnapshot(t, client); snap.Name != dimmer.GroupsName {
		t.Errorf("snapshot name = %q", snap.Name)
	}

	if _, err := h.ctrl.ImportEntity(ctx, dimmer.KindCue, blob); !errors.Is(err, dimmer.ErrDeserialization) {
		t.Errorf("ImportEntity(wrong kind) error = %v, want ErrDeserialization", err)
	}
	if _, err := h.ctrl.ImportEntity(ctx, dimmer.KindGroup, []byte("junk")); !errors.Is(err, dimmer.ErrDeserialization) {
		t.Errorf("ImportEntity(junk) error = %v, want ErrDeserialization", err)
	}
}

func TestExportRegistry(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, func(h *harness) {
		h.cues.Create("c1")
	})
	ctx := context.Background()

	data, err := h.ctrl.ExportRegistry(ctx, dimmer.CuesName)
	if err != nil {
		t.Fatalf("ExportRegistry() error = %v", err)
	}
	peer := dimmer.NewCueRegistry(nil, h.defaults)
	if err := peer.ImportFull(data); err != nil || peer.Len() != 1 {
		t.Errorf("export import: len=%d err=%v", peer.Len(), err)
	}
	if _, err := h.ctrl.ExportRegistry(ctx, "scenes"); !errors.Is(err, dimmer.ErrInvalidKind) {
		t.Errorf("ExportRegistry(scenes) error = %v", err)
	}
}

func TestSetCueDefaults(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, func(h *harness) {
		h.cues.Create("c1")
	})
	ctx := context.Background()

	if err := h.ctrl.SetCueDefaults(ctx, map[string]any{"up": 9.0, "follow": true}); err != nil {
		t.Fatalf("SetCueDefaults() error = %v", err)
	}
	err := h.ctrl.Mutate(ctx, dimmer.KindCue, "c1", func(e dimmer.Entity) error {
		cue := e.(*dimmer.Cue)
		if up, err := cue.Float("up"); err != nil || up != 9 {
			t.Errorf("Float(up) = %v, %v", up, err)
		}
		if follow, err := cue.Bool("follow"); err != nil || !follow {
			t.Errorf("Bool(follow) = %v, %v", follow, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.ctrl.SetCueDefaults(ctx, map[string]any{"up": []int{1}}); !errors.Is(err, dimmer.ErrInvalidAttribute) {
		t.Errorf("SetCueDefaults(list) error = %v, want ErrInvalidAttribute", err)
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t, universe.ModeOutput, func(h *harness) {
		h.groups.Create("old")
	})
	ctx := context.Background()

	defaults, _ := dimmer.NewDefaults(nil)
	groups := dimmer.NewGroupRegistry(nil)
	_ = groups.Create("g1").SetChannel(1, 1)
	cues := dimmer.NewCueRegistry(nil, defaults)
	cues.Create("c1")
	groupBlob, _ := groups.Export()
	cueBlob, _ := cues.Export()

	t.Run("bad cues leaves both untouched", func(t *testing.T) {
		err := h.ctrl.Restore(ctx, persistence.Snapshot{Groups: groupBlob, Cues: []byte("bad")})
		if !errors.Is(err, dimmer.ErrDeserialization) {
			t.Fatalf("Restore() error = %v, want ErrDeserialization", err)
		}
		data, _ := h.ctrl.ExportRegistry(ctx, dimmer.GroupsName)
		peer := dimmer.NewGroupRegistry(nil)
		_ = peer.ImportFull(data)
		if _, ok := peer.Get("old"); !ok || peer.Len() != 1 {
			t.Errorf("groups after failed restore = %v", peer.IDs())
		}
	})

	t.Run("good snapshot", func(t *testing.T) {
		if err := h.ctrl.Restore(ctx, persistence.Snapshot{Groups: groupBlob, Cues: cueBlob}); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if err := h.ctrl.ApplyUpdate(ctx, Update{Kind: UpdateGroup, ID: "g1", Level: ptr(1.0)}); err != nil {
			t.Fatalf("ApplyUpdate(restored group) error = %v", err)
		}
		if state, _ := h.ctrl.UniverseState(ctx); !state.Equal(dimmer.Levels{1: 255}) {
			t.Errorf("UniverseState() = %v", state)
		}
	})
}

func ptr(v float64) *float64 { return &v }

package universe

import (
	"errors"
	"testing"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		size int
		mode Mode
		want error
	}{
		{"ok", 512, ModeHTP, nil},
		{"zero", 0, ModeOutput, ErrInvalidSize},
		{"too large", 513, ModeOutput, ErrInvalidSize},
		{"bad mode", 16, Mode("blend"), ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.mode)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrame_Modes(t *testing.T) {
	computed := dimmer.Levels{1: 200, 2: 10, 4: 99}
	input := dimmer.Levels{1: 50, 2: 180, 3: 7}

	tests := []struct {
		mode Mode
		want []byte
	}{
		{ModeOutput, []byte{200, 10, 0, 99}},
		{ModeHTP, []byte{200, 180, 7, 99}},
		{ModeLTP, []byte{50, 180, 7, 99}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			u, err := New(4, tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			u.Set(computed)
			u.ApplyInput(input)

			got := u.Frame()
			if string(got) != string(tt.want) {
				t.Errorf("Frame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrame_LTPLatestWriterWins(t *testing.T) {
	u, _ := New(3, ModeLTP)

	u.ApplyInput(dimmer.Levels{1: 90, 2: 90})
	u.Set(dimmer.Levels{1: 10, 2: 0, 3: 30})

	// Channel 1 changed after input; channel 2 did not.
	if got, want := u.Frame(), []byte{10, 90, 30}; string(got) != string(want) {
		t.Errorf("Frame() = %v, want %v", got, want)
	}

	u.ApplyInput(dimmer.Levels{3: 5})
	if got, want := u.Frame(), []byte{10, 90, 5}; string(got) != string(want) {
		t.Errorf("Frame() after input = %v, want %v", got, want)
	}
}

func TestSet_IsVerbatimAndCopied(t *testing.T) {
	u, _ := New(4, ModeOutput)
	levels := dimmer.Levels{1: 1, 9: 9}
	u.Set(levels)
	levels[1] = 200

	state := u.State()
	if !state.Equal(dimmer.Levels{1: 1, 9: 9}) {
		t.Errorf("State() = %v", state)
	}
	state[1] = 100
	if u.State()[1] != 1 {
		t.Error("State() exposed internal map")
	}
	if len(u.Frame()) != 4 {
		t.Errorf("Frame() length = %d, want 4", len(u.Frame()))
	}

	u.Set(dimmer.Levels{2: 2})
	if !u.State().Equal(dimmer.Levels{2: 2}) {
		t.Errorf("Set() did not replace state: %v", u.State())
	}
}

func TestApplyInput_IgnoresOutOfRange(t *testing.T) {
	u, _ := New(2, ModeHTP)
	u.ApplyInput(dimmer.Levels{0: 1, 2: 40, 3: 99})

	if got := u.Input(); !got.Equal(dimmer.Levels{2: 40}) {
		t.Errorf("Input() = %v, want map[2:40]", got)
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		prev, next []byte
		want       dimmer.Levels
	}{
		{"same", []byte{1, 2}, []byte{1, 2}, dimmer.Levels{}},
		{"changed", []byte{1, 2, 3}, []byte{1, 9, 0}, dimmer.Levels{2: 9, 3: 0}},
		{"from empty", nil, []byte{0, 5}, dimmer.Levels{2: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Diff(tt.prev, tt.next); !got.Equal(tt.want) {
				t.Errorf("Diff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"output", "htp", "ltp"} {
		if m, err := ParseMode(s); err != nil || string(m) != s {
			t.Errorf("ParseMode(%q) = %q, %v", s, m, err)
		}
	}
	if _, err := ParseMode("HTP"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("ParseMode(HTP) error = %v", err)
	}
}

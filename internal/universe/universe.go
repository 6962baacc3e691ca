package universe

import (
	"errors"
	"fmt"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

// MaxChannels is the number of slots in one DMX universe.
const MaxChannels = 512

// Mode selects how live input is combined with computed output.
type Mode string

const (
	// ModeOutput sends computed levels only; input is observed but not mixed.
	ModeOutput Mode = "output"
	// ModeHTP sends the higher of computed and input per channel.
	ModeHTP Mode = "htp"
	// ModeLTP sends whichever of computed and input changed last per channel.
	ModeLTP Mode = "ltp"
)

// Errors returned by the universe package.
var (
	ErrInvalidMode      = errors.New("universe: invalid mode")
	ErrInvalidSize      = errors.New("universe: invalid channel count")
	ErrInputUnavailable = errors.New("universe: input source unavailable")
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOutput, ModeHTP, ModeLTP:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Universe is the channel state the controller owns: the computed levels
// clients see, plus the last live input used for mixing. It is not safe for
// concurrent use.
type Universe struct {
	size  int
	mode  Mode
	state dimmer.Levels

	input     []uint8
	inputWins []bool
}

// New returns a dark universe of size channels.
func New(size int, mode Mode) (*Universe, error) {
	if size < 1 || size > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	return &Universe{
		size:      size,
		mode:      mode,
		state:     dimmer.Levels{},
		input:     make([]uint8, size),
		inputWins: make([]bool, size),
	}, nil
}

// Size returns the channel count.
func (u *Universe) Size() int { return u.size }

// Mode returns the mixing mode.
func (u *Universe) Mode() Mode { return u.mode }

// State returns a copy of the computed levels.
func (u *Universe) State() dimmer.Levels { return u.state.Clone() }

// Set replaces the computed levels. Channels outside the universe are kept
// in the state but never reach a frame. In LTP mode every channel whose
// computed level changed takes precedence over input.
func (u *Universe) Set(levels dimmer.Levels) {
	if u.mode == ModeLTP {
		for ch := 1; ch <= u.size; ch++ {
			if levels[ch] != u.state[ch] {
				u.inputWins[ch-1] = false
			}
		}
	}
	u.state = levels.Clone()
}

// ApplyInput records changed input channels.
func (u *Universe) ApplyInput(changed dimmer.Levels) {
	for ch, v := range changed {
		if ch < 1 || ch > u.size {
			continue
		}
		u.input[ch-1] = v
		u.inputWins[ch-1] = true
	}
}

// Input returns the last live input as levels, zero channels omitted.
func (u *Universe) Input() dimmer.Levels {
	out := dimmer.Levels{}
	for i, v := range u.input {
		if v != 0 {
			out[i+1] = v
		}
	}
	return out
}

// Frame returns the mixed output, one byte per channel starting at
// channel 1.
func (u *Universe) Frame() []byte {
	frame := make([]byte, u.size)
	for i := range frame {
		computed := u.state[i+1]
		switch u.mode {
		case ModeHTP:
			frame[i] = max(computed, u.input[i])
		case ModeLTP:
			if u.inputWins[i] {
				frame[i] = u.input[i]
			} else {
				frame[i] = computed
			}
		default:
			frame[i] = computed
		}
	}
	return frame
}

// Diff returns the channels of next that differ from prev. Both frames are
// indexed from channel 1; a shorter frame reads as zero past its end.
func Diff(prev, next []byte) dimmer.Levels {
	changed := dimmer.Levels{}
	for i, v := range next {
		var old byte
		if i < len(prev) {
			old = prev[i]
		}
		if v != old {
			changed[i+1] = v
		}
	}
	return changed
}

// normalizeFrame pads or truncates frame to size bytes.
func normalizeFrame(frame []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, frame)
	return out
}

package dimmer

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxDevice is the highest device level a channel slot can carry.
const MaxDevice = 255

// Levels maps a channel number to a device level.
type Levels map[int]uint8

// Channels returns the channel numbers in ascending order.
func (l Levels) Channels() []int {
	chans := make([]int, 0, len(l))
	for ch := range l {
		chans = append(chans, ch)
	}
	sort.Ints(chans)
	return chans
}

// Clone returns an independent copy.
func (l Levels) Clone() Levels {
	out := make(Levels, len(l))
	for ch, v := range l {
		out[ch] = v
	}
	return out
}

// Equal reports whether both maps hold the same channels at the same levels.
func (l Levels) Equal(other Levels) bool {
	if len(l) != len(other) {
		return false
	}
	for ch, v := range l {
		if ov, ok := other[ch]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (l Levels) String() string {
	parts := make([]string, 0, len(l))
	for _, ch := range l.Channels() {
		parts = append(parts, fmt.Sprintf("%d:%d", ch, l[ch]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ToDevice converts a normalized level to device units, rounding half away from zero.
func ToDevice(level float64) uint8 {
	return uint8(math.Round(level * MaxDevice))
}

// ToNormalized converts a device level to the [0,1] range.
func ToNormalized(device uint8) float64 {
	return float64(device) / MaxDevice
}

// ValidateLevel checks a normalized level.
func ValidateLevel(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return &InvalidLevelError{Value: level, Max: 1}
	}
	return nil
}

// ValidateDevice checks a raw device level.
func ValidateDevice(level int) error {
	if level < 0 || level > MaxDevice {
		return &InvalidLevelError{Value: float64(level), Max: MaxDevice}
	}
	return nil
}

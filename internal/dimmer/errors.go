package dimmer

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the dimmer package.
//
// The typed errors below match these sentinels through errors.Is:
//
//	if errors.Is(err, dimmer.ErrInvalidLevel) {
//	    // reject the request, entity is unchanged
//	}
var (
	// ErrInvalidLevel is returned when a channel, nested or master level is out of range.
	ErrInvalidLevel = errors.New("dimmer: invalid level")

	// ErrMissingDefault is returned when a cue attribute has neither a local value nor a default.
	ErrMissingDefault = errors.New("dimmer: missing default")

	// ErrDeserialization is returned when a snapshot blob cannot be imported.
	ErrDeserialization = errors.New("dimmer: deserialization failed")

	// ErrCyclicReference is returned when nested references form a loop.
	ErrCyclicReference = errors.New("dimmer: cyclic nested reference")

	// ErrEntityNotFound is returned when an id does not exist in a registry.
	ErrEntityNotFound = errors.New("dimmer: entity not found")

	// ErrInvalidAttribute is returned when a cue attribute name or value is not accepted.
	ErrInvalidAttribute = errors.New("dimmer: invalid cue attribute")

	// ErrInvalidKind is returned when an entity kind or registry name is not recognised.
	ErrInvalidKind = errors.New("dimmer: invalid kind")

	// ErrUnsupportedFormat is returned when a snapshot format version is not known.
	ErrUnsupportedFormat = errors.New("dimmer: unsupported snapshot format")
)

// InvalidLevelError reports a level outside [0, Max].
type InvalidLevelError struct {
	Value float64
	Max   float64
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("dimmer: level %v outside [0, %v]", e.Value, e.Max)
}

// Is reports whether target is ErrInvalidLevel.
func (e *InvalidLevelError) Is(target error) bool {
	return target == ErrInvalidLevel
}

// MissingDefaultError reports an attribute read that found no value in the
// entity metadata or in the default table for Domain.
type MissingDefaultError struct {
	Domain    string
	Attribute string
}

func (e *MissingDefaultError) Error() string {
	return fmt.Sprintf("dimmer: no default for %s attribute %q", e.Domain, e.Attribute)
}

// Is reports whether target is ErrMissingDefault.
func (e *MissingDefaultError) Is(target error) bool {
	return target == ErrMissingDefault
}

// DeserializationError wraps the reason a snapshot blob was rejected.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dimmer: deserialization failed: %s: %v", e.Reason, e.Err)
	}
	return "dimmer: deserialization failed: " + e.Reason
}

// Is reports whether target is ErrDeserialization.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// CyclicReferenceError names the chain of ids that loops back on itself.
type CyclicReferenceError struct {
	Path []string
}

func (e *CyclicReferenceError) Error() string {
	return "dimmer: cyclic nested reference: " + strings.Join(e.Path, " -> ")
}

// Is reports whether target is ErrCyclicReference.
func (e *CyclicReferenceError) Is(target error) bool {
	return target == ErrCyclicReference
}

func deserializationErr(reason string, err error) error {
	return &DeserializationError{Reason: reason, Err: err}
}

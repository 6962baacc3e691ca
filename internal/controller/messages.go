package controller

import "github.com/nerrad567/plc-core/internal/dimmer"

// Origin tells clients whether a DimmerState is authoritative or a delta.
type Origin string

const (
	// OriginFull marks the complete computed universe state.
	OriginFull Origin = "full"
	// OriginInput marks the channels changed by live input.
	OriginInput Origin = "input"
)

// Message is an intent sent to clients. Encoding belongs to the transport.
type Message interface {
	isMessage()
}

// DimmerState carries channel levels.
type DimmerState struct {
	Levels dimmer.Levels
	Origin Origin
}

// RegistrySnapshot carries an exported registry or entity blob. Name is
// "groups" or "cues".
type RegistrySnapshot struct {
	Name string
	Data []byte
}

func (DimmerState) isMessage()      {}
func (RegistrySnapshot) isMessage() {}

// Client is a connected peer. Send must not block: a slow peer queues or
// fails, and a returned error disconnects the client.
type Client interface {
	ID() string
	Send(msg Message) error
}

// ClientState is the lifecycle of a connection: connecting until the join
// sequence has been sent, then registered, then unregistered for good.
type ClientState int

const (
	StateConnecting ClientState = iota
	StateRegistered
	StateUnregistered
)

// StatefulClient is a Client that tracks its own lifecycle. RegisterClient
// refuses one that is already unregistered.
type StatefulClient interface {
	Client
	State() ClientState
}

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

package universe

import "context"

// Source delivers raw input frames from a live desk.
type Source interface {
	// Open starts reception. Frames arrive latest-wins on the returned
	// channel until Close or ctx cancellation.
	Open(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// Sink transmits mixed output frames.
type Sink interface {
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Logger is the subset of logging.Logger the universe package uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// offer replaces whatever is pending in a one-slot channel with frame.
func offer(ch chan []byte, frame []byte) {
	for {
		select {
		case ch <- frame:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

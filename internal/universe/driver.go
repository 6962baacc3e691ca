package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

// DriverConfig configures a Driver.
type DriverConfig struct {
	// Channels is the universe size; input frames are padded or cut to it.
	Channels int
	// Interval is how often the last output frame is re-sent. Zero disables
	// the refresh.
	Interval time.Duration
	// AllowUnreconciledInput lets the driver run output-only when the input
	// source cannot be opened.
	AllowUnreconciledInput bool
}

// Driver moves frames between the controller and the outside world on its
// own goroutine. Input frames are diffed against the previous one and the
// changed channels handed to the input callback. Output frames pushed by the
// controller are written to the sink, latest first, and refreshed on every
// interval.
type Driver struct {
	cfg     DriverConfig
	source  Source
	sink    Sink
	onInput func(dimmer.Levels)
	logger  Logger

	input     <-chan []byte
	output    chan []byte
	lastInput []byte
	current   []byte
}

// NewDriver wires source and sink, either of which may be nil. onInput runs
// on the driver goroutine and must not block; controller.OnInputChange is
// the intended callback.
func NewDriver(cfg DriverConfig, source Source, sink Sink, onInput func(dimmer.Levels)) *Driver {
	if onInput == nil {
		onInput = func(dimmer.Levels) {}
	}
	return &Driver{
		cfg:       cfg,
		source:    source,
		sink:      sink,
		onInput:   onInput,
		logger:    noopLogger{},
		output:    make(chan []byte, 1),
		lastInput: make([]byte, cfg.Channels),
	}
}

// SetLogger sets the logger. Call before Open.
func (d *Driver) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Open starts the input source. A failure is returned wrapped in
// ErrInputUnavailable unless AllowUnreconciledInput is set, in which case it
// is logged and the driver continues without input.
func (d *Driver) Open(ctx context.Context) error {
	if d.source == nil {
		return nil
	}
	frames, err := d.source.Open(ctx)
	if err != nil {
		if !d.cfg.AllowUnreconciledInput {
			return fmt.Errorf("%w: %w", ErrInputUnavailable, err)
		}
		d.logger.Warn("input source unavailable, running output only", "error", err)
		d.source = nil
		return nil
	}
	d.input = frames
	return nil
}

// HasInput reports whether a live input source is attached.
func (d *Driver) HasInput() bool {
	return d.input != nil
}

// Push queues frame for output, replacing any frame not yet written. It
// never blocks.
func (d *Driver) Push(frame []byte) {
	offer(d.output, frame)
}

// Run services input and output until ctx is cancelled, then closes the
// source and sink.
func (d *Driver) Run(ctx context.Context) error {
	defer d.close()

	var refresh <-chan time.Time
	if d.sink != nil && d.cfg.Interval > 0 {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-d.input:
			if !ok {
				d.logger.Warn("input source closed")
				d.input = nil
				continue
			}
			d.handleInput(frame)

		case frame := <-d.output:
			d.current = frame
			d.write(ctx)

		case <-refresh:
			d.write(ctx)
		}
	}
}

func (d *Driver) handleInput(frame []byte) {
	frame = normalizeFrame(frame, d.cfg.Channels)
	changed := Diff(d.lastInput, frame)
	d.lastInput = frame
	if len(changed) == 0 {
		return
	}
	d.logger.Debug("input changed", "channels", len(changed))
	d.onInput(changed)
}

func (d *Driver) write(ctx context.Context) {
	if d.sink == nil || d.current == nil {
		return
	}
	if err := d.sink.Write(ctx, d.current); err != nil {
		d.logger.Warn("output write failed", "error", err)
	}
}

func (d *Driver) close() {
	if d.source != nil {
		if err := d.source.Close(); err != nil {
			d.logger.Warn("closing input source", "error", err)
		}
	}
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			d.logger.Warn("closing output sink", "error", err)
		}
	}
}

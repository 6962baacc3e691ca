package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/persistence"
	"github.com/nerrad567/plc-core/internal/universe"
)

const defaultInputQueue = 64

// Persister accepts snapshot requests. persistence.Saver implements it.
type Persister interface {
	Request(snap persistence.Snapshot)
}

// Output receives every new mixed frame. universe.Driver implements it.
type Output interface {
	Push(frame []byte)
}

// Telemetry records broadcasts. *influxdb.Client implements it, nil included.
type Telemetry interface {
	WriteUniverse(origin string, levels dimmer.Levels, at time.Time)
	WriteUpdate(kind, id string, level float64, channels int)
	WriteClients(count int)
}

// Logger is the logging interface the controller uses.
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

type noopTelemetry struct{}

func (noopTelemetry) WriteUniverse(string, dimmer.Levels, time.Time) {}
func (noopTelemetry) WriteUpdate(string, string, float64, int)       {}
func (noopTelemetry) WriteClients(int)                               {}

// Deps holds the controller's collaborators. Universe, Groups, Cues and
// Defaults are required; Defaults must be the table Cues was built with.
// A nil Persister disables autosave.
type Deps struct {
	Universe *universe.Universe
	Groups   *dimmer.Registry[*dimmer.Group]
	Cues     *dimmer.Registry[*dimmer.Cue]
	Defaults *dimmer.Defaults

	Persister Persister
	Output    Output
	Telemetry Telemetry
	Logger    Logger

	InputQueue    int
	FormatVersion int
}

// Controller owns the universe, the client set and both registries. All of
// that state is touched only by the Run goroutine; public methods hand work
// to it and wait for the result, so operations never interleave.
type Controller struct {
	universe *universe.Universe
	groups   *dimmer.Registry[*dimmer.Group]
	cues     *dimmer.Registry[*dimmer.Cue]
	defaults *dimmer.Defaults

	persister     Persister
	output        Output
	telemetry     Telemetry
	logger        Logger
	formatVersion int

	clients map[string]Client

	ops   chan func()
	input chan dimmer.Levels
	done  chan struct{}
}

// New builds a controller. Call Run to start it.
func New(deps Deps) (*Controller, error) {
	switch {
	case deps.Universe == nil:
		return nil, fmt.Errorf("%w: universe", ErrMissingDependency)
	case deps.Groups == nil:
		return nil, fmt.Errorf("%w: groups registry", ErrMissingDependency)
	case deps.Cues == nil:
		return nil, fmt.Errorf("%w: cues registry", ErrMissingDependency)
	case deps.Defaults == nil:
		return nil, fmt.Errorf("%w: cue defaults", ErrMissingDependency)
	}

	c := &Controller{
		universe:      deps.Universe,
		groups:        deps.Groups,
		cues:          deps.Cues,
		defaults:      deps.Defaults,
		persister:     deps.Persister,
		output:        deps.Output,
		telemetry:     deps.Telemetry,
		logger:        deps.Logger,
		formatVersion: deps.FormatVersion,
		clients:       make(map[string]Client),
		ops:           make(chan func()),
		done:          make(chan struct{}),
	}
	if c.telemetry == nil {
		c.telemetry = noopTelemetry{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.formatVersion == 0 {
		c.formatVersion = dimmer.LatestFormat
	}
	queue := deps.InputQueue
	if queue <= 0 {
		queue = defaultInputQueue
	}
	c.input = make(chan dimmer.Levels, queue)
	return c, nil
}

// Run executes controller operations one at a time until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.logger.Info("controller started",
		"channels", c.universe.Size(),
		"mode", string(c.universe.Mode()),
		"autosave", c.persister != nil,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopped", "clients", len(c.clients))
			return nil
		case op := <-c.ops:
			op()
		case changed := <-c.input:
			c.handleInput(changed)
		}
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// do runs fn on the Run goroutine and returns its error. Once fn has been
// accepted it always runs to completion, even if ctx is cancelled while the
// caller waits.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	op := func() { result <- fn() }

	select {
	case c.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

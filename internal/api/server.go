package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/plc-core/internal/controller"
	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/infrastructure/config"
	"github.com/nerrad567/plc-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the subset of *controller.Controller the server drives.
type Controller interface {
	RegisterClient(ctx context.Context, client controller.Client) error
	UnregisterClient(ctx context.Context, client controller.Client) error
	ClientCount(ctx context.Context) (int, error)
	ApplyUpdate(ctx context.Context, u controller.Update) error
	Create(ctx context.Context, kind dimmer.Kind, id string) error
	Delete(ctx context.Context, kind dimmer.Kind, id string) error
	ImportEntity(ctx context.Context, kind dimmer.Kind, data []byte) (string, error)
	PersistCueDefaults(ctx context.Context, id string) error
	ExportRegistry(ctx context.Context, name string) ([]byte, error)
	UniverseState(ctx context.Context) (dimmer.Levels, error)
}

// ConnectionStatus reports whether an optional backend is reachable.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.ServerConfig
	Logger     *logging.Logger
	Controller Controller
	// MQTT is reported by /metrics when set.
	MQTT    ConnectionStatus
	Version string
}

// Server is the HTTP API and WebSocket server for plcd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.ServerConfig
	logger    *logging.Logger
	ctrl      Controller
	mqtt      ConnectionStatus
	version   string
	origins   []string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		ctrl:      deps.Controller,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		origins:   splitOrigins(deps.Config.CORS.AllowedOrigins),
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(s.ctx)
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server and disconnects every
// WebSocket client.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.cancel()
	s.hub.closeAll()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

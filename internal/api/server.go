package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/stream-lights-core/internal/audit"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/logging"
	"github.com/nerrad567/stream-lights-core/internal/status"
)

// gracefulShutdownTimeout bounds in-flight requests during Close.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component check on /api/v1/health.
const healthCheckTimeout = 3 * time.Second

// HealthChecker is implemented by components with an active health check
// (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Tracker *status.Tracker

	// Commands serves /api/v1/commands. Optional.
	Commands audit.Repository

	// Checks are run by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the operator HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	tracker  *status.Tracker
	commands audit.Repository
	checks   map[string]HealthChecker
	version  string
	server   *http.Server
	addr     string
}

// New creates a server. It does not listen until Start is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger or tracker is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Tracker == nil {
		return nil, errors.New("status tracker is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		tracker:  deps.Tracker,
		commands: deps.Commands,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("API server listening", "address", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

// Close waits up to 10 seconds for in-flight requests, then closes.
func (s *Server) Close() error {
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

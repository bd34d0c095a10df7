package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
	"github.com/nerrad567/tibber-export/internal/infrastructure/logging"
	"github.com/nerrad567/tibber-export/internal/supervisor"
)

// Server timeouts.
const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// probes during shutdown.
	gracefulShutdownTimeout = 5 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	idleTimeout  = 30 * time.Second
)

// ErrNotStarted is returned by HealthCheck before Start.
var ErrNotStarted = errors.New("health: server not started")

// StatusSource reports the supervisor snapshot served by the probe.
// *supervisor.Supervisor satisfies it.
type StatusSource interface {
	Stats() supervisor.Stats
}

// Server is the liveness probe HTTP server.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg     config.HealthConfig
	source  StatusSource
	logger  *logging.Logger
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a probe server. It does not listen until Start is called.
//
// Parameters:
//   - cfg: Probe address
//   - source: Supervisor to report on
//   - logger: Request and error logging
//   - version: Reported in the response body
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If source or logger is missing
func New(cfg config.HealthConfig, source StatusSource, logger *logging.Logger, version string) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("status source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Server{
		cfg:     cfg,
		source:  source,
		logger:  logger.With("component", "health"),
		version: version,
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens synchronously so a port already in use is reported here
// rather than only being logged. The server stops when ctx is cancelled or
// Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("health server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.server = srv
	s.listener = ln

	s.logger.Info("health probe listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server error", "error", err)
		}
	}()

	context.AfterFunc(ctx, func() {
		//nolint:errcheck // Shutdown errors are logged by Close
		s.Close()
	})

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("health server shutdown", "error", err)
		return fmt.Errorf("shutting down health server: %w", err)
	}
	return nil
}

// HealthCheck verifies the probe server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ErrNotStarted
	}
	return nil
}

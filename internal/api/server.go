// Package api provides the HTTP REST API and WebSocket server for the EZVIZ bridge.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/history"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/metrics"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Device is the bridged device. *integration.Integration satisfies it.
type Device interface {
	Serial() string
	Identity() integration.Identity
	Capabilities() command.Capabilities
	Snapshot() (status.Snapshot, bool)
	Observations() []observation.Observation
	Observation(key string) (observation.Observation, bool)
	SnapshotImage(ctx context.Context) ([]byte, error)
	Execute(ctx context.Context, action command.Action) (command.Result, error)
	Refresh(ctx context.Context) error
	Ready() bool
	Healthy() bool
	Stats() coordinator.Stats
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// DBStatser exposes connection pool statistics. *database.DB satisfies it.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Device   Device

	// Optional dependencies. Endpoints backed by a missing one answer 503
	// or omit the section.
	History history.Repository
	Audit   audit.Repository
	Metrics *metrics.Metrics
	MQTT    ConnectionChecker
	DB      DBStatser

	// Hub, if set, is used instead of creating one, so it can be registered
	// as an observation listener before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server for the EZVIZ bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	device    Device
	history   history.Repository
	audit     audit.Repository
	metrics   *metrics.Metrics
	mqtt      ConnectionChecker
	db        DBStatser
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		device:    deps.Device,
		history:   deps.History,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for background goroutines (not used for listener lifetime)
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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

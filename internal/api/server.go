// Package api provides the HTTP REST API for WashLogic Core.
//
// It exposes the administrative surface of the reconciliation engine:
// event ingest and inspection, order and inventory read access, manual
// stock adjustments, and alert acknowledgement, to back-office tooling
// and operator dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/washlogic/washlogic-core/internal/alert"
	"github.com/washlogic/washlogic-core/internal/audit"
	"github.com/washlogic/washlogic-core/internal/device"
	"github.com/washlogic/washlogic-core/internal/event"
	"github.com/washlogic/washlogic-core/internal/infrastructure/config"
	"github.com/washlogic/washlogic-core/internal/infrastructure/logging"
	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
	"github.com/washlogic/washlogic-core/internal/reconcile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Coordinator *reconcile.Coordinator
	Events      event.Repository
	Orders      order.Repository
	Inventory   inventory.Repository
	Ledger      *inventory.Ledger
	Alerts      alert.Repository
	Evaluator   *alert.Evaluator
	Devices     device.Repository
	Audit       audit.Repository
	Version     string
}

// Server is the HTTP API server for WashLogic Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	coordinator *reconcile.Coordinator
	events      event.Repository
	orders      order.Repository
	inventory   inventory.Repository
	ledger      *inventory.Ledger
	alerts      alert.Repository
	evaluator   *alert.Evaluator
	devices     device.Repository
	audit       audit.Repository
	version     string
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinator, repositories)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Events == nil || deps.Orders == nil || deps.Inventory == nil ||
		deps.Alerts == nil || deps.Devices == nil {
		return nil, fmt.Errorf("all repositories are required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger is required")
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("alert evaluator is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		events:      deps.Events,
		orders:      deps.Orders,
		inventory:   deps.Inventory,
		ledger:      deps.Ledger,
		alerts:      deps.Alerts,
		evaluator:   deps.Evaluator,
		devices:     deps.Devices,
		audit:       deps.Audit,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
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

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

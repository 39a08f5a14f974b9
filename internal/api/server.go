package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/astrobridge/internal/equipment"
	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
	"github.com/nerrad567/astrobridge/internal/infrastructure/logging"
	"github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/astrobridge/internal/metrics"
	"github.com/nerrad567/astrobridge/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ArchiveReader reads archived events.
type ArchiveReader interface {
	List(ctx context.Context, since time.Time, limit int) ([]event.HistoryEvent, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	History     config.HistoryConfig
	Logger      *logging.Logger
	Registry    *process.Registry
	Broadcaster *event.Broadcaster
	Commander   equipment.Commander

	// Optional.
	Simulator *equipment.SimulatedCommander // enables GET /equipment
	Archive   ArchiveReader                 // enables GET /events/archive
	Metrics   *metrics.Metrics              // enables /metrics and counters
	MQTT      *mqtt.Client                  // reported in system metrics
	DB        *database.DB                  // reported in system metrics
	Version   string
}

// Server is the HTTP API server for astrobridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket clients.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	historyCfg  config.HistoryConfig
	logger      *logging.Logger
	registry    *process.Registry
	broadcaster *event.Broadcaster
	commander   equipment.Commander
	simulator   *equipment.SimulatedCommander
	archive     ArchiveReader
	metrics     *metrics.Metrics
	mqtt        *mqtt.Client
	db          *database.DB
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("process registry is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("event broadcaster is required")
	}
	if deps.Commander == nil {
		return nil, fmt.Errorf("equipment commander is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		historyCfg:  deps.History,
		logger:      deps.Logger,
		registry:    deps.Registry,
		broadcaster: deps.Broadcaster,
		commander:   deps.Commander,
		simulator:   deps.Simulator,
		archive:     deps.Archive,
		metrics:     deps.Metrics,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	s.hub = NewHub(s.broadcaster, s.wsCfg, s.logger.Component("websocket"))
	if s.metrics != nil {
		s.hub.onDrop = s.metrics.IncFrameDropped
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// WebSocket clients are disconnected first. In-flight requests get up to
// 10 seconds to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()

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

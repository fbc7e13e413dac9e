package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/jsonwp-core/internal/audit"
	"github.com/nerrad567/jsonwp-core/internal/driver/upstream"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/database"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/logging"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
	"github.com/nerrad567/jsonwp-core/internal/process"
	"github.com/nerrad567/jsonwp-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Only Logger and Dispatcher are required. Every other dependency is
// optional and the matching endpoint or metric degrades when it is nil.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Dispatcher *jsonwp.Dispatcher

	Counters    *telemetry.Counters
	CommandRepo audit.Repository
	DB          *database.DB
	MQTT        *mqtt.Client
	Influx      *influxdb.Client
	Upstream    *upstream.Driver
	Process     *process.Manager

	// Hub is shared with the dispatcher's observer chain. If nil the
	// server creates its own and nothing is broadcast.
	Hub     *Hub
	Version string
}

// Server is the gateway's HTTP server: the protocol routes plus the
// /api/v1 admin surface.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	dispatcher  *jsonwp.Dispatcher
	counters    *telemetry.Counters
	commandRepo audit.Repository
	db          *database.DB
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	upstream    *upstream.Driver
	process     *process.Manager
	hub         *Hub
	version     string
	startTime   time.Time
	server      *http.Server
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		dispatcher:  deps.Dispatcher,
		counters:    deps.Counters,
		commandRepo: deps.CommandRepo,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		influx:      deps.Influx,
		upstream:    deps.Upstream,
		process:     deps.Process,
		hub:         hub,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Handler returns the fully wired router. Start uses it; tests can serve
// it directly through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

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
				"base_path", s.dispatcher.BasePath(),
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting",
				"address", s.server.Addr,
				"base_path", s.dispatcher.BasePath(),
			)
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
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

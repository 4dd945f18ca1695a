package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/infrastructure/config"
	"github.com/nerrad567/twc-director/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Logger is the logging surface used by the server and hub.
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

// EntityService is the entity surface the API serves. *host.Host implements it.
type EntityService interface {
	Entities() []*entity.Entity
	Entity(uniqueID string) (*entity.Entity, bool)
	EntitiesForDevice(deviceID string) []*entity.Entity
	SetValue(ctx context.Context, uniqueID string, v float64) error
}

// DeviceLister reads device records. *device.Registry implements it.
type DeviceLister interface {
	List() []device.Record
	GetByID(ctx context.Context, id string) (*device.Record, error)
}

// HealthChecker reports a dependency's health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GatewayStats reports the supervised gateway. *process.Supervisor implements it.
type GatewayStats interface {
	Stats() process.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   Logger
	Entities EntityService
	Devices  DeviceLister

	// Optional.
	MQTT       HealthChecker
	Gateway    GatewayStats
	Prometheus http.Handler
	Hub        *Hub
	Version    string

	// MetricsPath mounts Prometheus under /api/v1. Defaults to /metrics.
	MetricsPath string
}

// Server is the HTTP API server for TWC Director.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      Logger
	entities    EntityService
	devices     DeviceLister
	mqtt        HealthChecker
	gateway     GatewayStats
	prometheus  http.Handler
	metricsPath string
	version     string
	startTime   time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, entities, devices)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.Entities == nil {
		return nil, errors.New("api: entity service is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("api: device registry is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		entities:    deps.Entities,
		devices:     deps.Devices,
		mqtt:        deps.MQTT,
		gateway:     deps.Gateway,
		prometheus:  deps.Prometheus,
		metricsPath: deps.MetricsPath,
		version:     deps.Version,
		startTime:   time.Now(),
	}

	// The host broadcasts through the same hub, so it is usually created
	// up front and shared.
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless it was injected) and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Parent context for the hub's lifetime
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

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
		return errors.New("api server not started")
	}
	return nil
}

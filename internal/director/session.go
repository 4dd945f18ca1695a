package director

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/twc-director/internal/discovery"
	"github.com/nerrad567/twc-director/internal/infrastructure/config"
	"github.com/nerrad567/twc-director/internal/platform"
	"github.com/nerrad567/twc-director/internal/twc"
)

// Logger is the logging surface used by this package and handed to the
// components the session creates.
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

// Metrics is every counter the session's components record.
// *metrics.Metrics implements it.
type Metrics interface {
	discovery.Metrics
	platform.Metrics
	twc.MetricsRecorder
}

// EntityHost activates entities and routes writes. *host.Host implements it.
type EntityHost interface {
	platform.EntityHost
	Start() error
	Teardown()
}

// Options holds the session's explicit dependencies.
type Options struct {
	Config    config.TWCConfig
	MQTT      twc.MQTTClient
	Registry  platform.DeviceRegistrar
	Host      EntityHost
	Telemetry twc.TelemetryRecorder
	Metrics   Metrics
	Logger    Logger

	// ProcessTimeout bounds the handling of one discovered device.
	ProcessTimeout time.Duration
}

// Session owns one running pipeline: the gateway link, the discovery
// broadcaster and one processor per platform.
//
// Lifecycle:
//
//	s, _ := director.New(opts)
//	s.Start(ctx)   // processors first, then the gateway link
//	...
//	s.Stop(ctx)    // processors, entities, gateway link
type Session struct {
	opts   Options
	logger Logger

	broadcaster *discovery.Broadcaster
	manager     *twc.Manager
	processors  []*platform.Processor

	mu      sync.Mutex
	started bool
	group   *errgroup.Group
	cancel  context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

// New validates opts and builds the broadcaster, the gateway link and the
// platform processors. Nothing runs until Start.
func New(opts Options) (*Session, error) {
	switch {
	case opts.MQTT == nil:
		return nil, errors.New("director: MQTT client is required")
	case opts.Registry == nil:
		return nil, errors.New("director: device registry is required")
	case opts.Host == nil:
		return nil, errors.New("director: entity host is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Session{opts: opts, logger: logger}
	s.broadcaster = discovery.NewBroadcaster(discovery.Options{
		Capacity: opts.Config.DiscoveryQueueSize,
		Logger:   logger,
		Metrics:  opts.Metrics,
	})

	manager, err := twc.NewManager(twc.ManagerOptions{
		MQTT:             opts.MQTT,
		Discovery:        discovery.ManagerSink{Broadcaster: s.broadcaster},
		Telemetry:        opts.Telemetry,
		Metrics:          opts.Metrics,
		Logger:           logger,
		Interface:        opts.Config.RS485Interface,
		SharedMaxCurrent: opts.Config.SharedMaxCurrent,
		CommandTimeout:   time.Duration(opts.Config.CommandTimeout) * time.Second,
		CommandRetries:   opts.Config.CommandRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("director: creating gateway link: %w", err)
	}
	s.manager = manager

	builders := []platform.Builder{
		platform.SensorBuilder{},
		platform.NumberBuilder{Controller: manager},
		platform.EventBuilder{},
	}
	for _, b := range builders {
		// Every consumer registers here, before the manager can discover
		// anything.
		queue, err := s.broadcaster.RegisterConsumer(string(b.Kind()), opts.Config.DiscoveryQueueSize)
		if err != nil {
			return nil, fmt.Errorf("director: registering %s queue: %w", b.Kind(), err)
		}
		p, err := platform.NewProcessor(platform.ProcessorOptions{
			Queue:    queue,
			Builder:  b,
			Registry: opts.Registry,
			Host:     opts.Host,
			Logger:   logger,
			Metrics:  opts.Metrics,
			Timeout:  opts.ProcessTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("director: creating %s processor: %w", b.Kind(), err)
		}
		s.processors = append(s.processors, p)
	}

	return s, nil
}

// Start runs the processors and then starts the gateway link.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("director: session already started")
	}

	if err := s.opts.Host.Start(); err != nil {
		return fmt.Errorf("director: starting entity host: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, p := range s.processors {
		p := p
		group.Go(func() error {
			return p.Run(groupCtx)
		})
	}
	s.group = group
	s.cancel = cancel

	if err := s.manager.Start(ctx); err != nil {
		cancel()
		_ = group.Wait()
		s.opts.Host.Teardown()
		_ = s.manager.Shutdown(ctx)
		return fmt.Errorf("director: starting gateway link: %w", err)
	}

	s.started = true
	s.logger.Info("director session started",
		"platforms", len(s.processors),
		"interface", s.opts.Config.RS485Interface,
	)
	return nil
}

// Stop cancels the processors, detaches every entity and shuts the
// gateway link down. Safe to call more than once.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started, group, cancel := s.started, s.group, s.cancel
		s.mu.Unlock()
		if !started {
			return
		}

		cancel()
		var errs []error
		if err := group.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("processors: %w", err))
		}
		s.opts.Host.Teardown()
		if err := s.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway link: %w", err))
		}
		s.stopErr = errors.Join(errs...)
		s.logger.Info("director session stopped")
	})
	return s.stopErr
}

// Manager returns the gateway link.
func (s *Session) Manager() *twc.Manager {
	return s.manager
}

// Broadcaster returns the discovery broadcaster.
func (s *Session) Broadcaster() *discovery.Broadcaster {
	return s.broadcaster
}

// Processors returns the platform processors in start order.
func (s *Session) Processors() []*platform.Processor {
	return s.processors
}

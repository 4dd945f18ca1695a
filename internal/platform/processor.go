package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/discovery"
	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/twc"
)

// DefaultProcessTimeout bounds the handling of one discovery object.
const DefaultProcessTimeout = 30 * time.Second

// Processing results reported to Metrics.
const (
	resultOK       = "ok"
	resultFiltered = "filtered"
	resultError    = "error"
)

// Logger is the logging surface used by this package.
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

// Builder creates a platform's entities for one device.
type Builder interface {
	Kind() entity.Kind
	Build(d twc.Device) ([]*entity.Entity, error)
}

// DeviceRegistrar registers device info. *device.Registry implements it.
type DeviceRegistrar interface {
	GetOrCreate(ctx context.Context, info device.Info) (*device.Record, error)
}

// EntityHost activates built entities. *host.Host implements it.
type EntityHost interface {
	AddEntities(ctx context.Context, entities []*entity.Entity) error
}

// Metrics receives processing results. *metrics.Metrics implements it.
type Metrics interface {
	RecordDiscoveryProcessed(platform, result string)
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Queue    *discovery.Queue
	Builder  Builder
	Registry DeviceRegistrar
	Host     EntityHost
	Logger   Logger
	Metrics  Metrics

	// Timeout bounds one object; DefaultProcessTimeout when zero.
	Timeout time.Duration
}

// Processor drains one discovery queue and turns each discovered
// peripheral into entities.
type Processor struct {
	opts   ProcessorOptions
	logger Logger
}

// NewProcessor validates opts and returns a Processor.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	switch {
	case opts.Queue == nil:
		return nil, fmt.Errorf("%w: queue", ErrMissingDependency)
	case opts.Builder == nil:
		return nil, fmt.Errorf("%w: builder", ErrMissingDependency)
	case opts.Registry == nil:
		return nil, fmt.Errorf("%w: device registry", ErrMissingDependency)
	case opts.Host == nil:
		return nil, fmt.Errorf("%w: entity host", ErrMissingDependency)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProcessTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Processor{opts: opts, logger: logger}, nil
}

// Kind returns the platform this processor builds.
func (p *Processor) Kind() entity.Kind {
	return p.opts.Builder.Kind()
}

// Run handles objects until ctx is cancelled. It returns nil on
// cancellation; failures for a single object are logged and do not stop
// the loop.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Debug("platform processor started", "platform", string(p.Kind()))
	for {
		obj, err := p.opts.Queue.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.Debug("platform processor stopped", "platform", string(p.Kind()))
				return nil
			}
			return err
		}
		p.handle(ctx, obj)
	}
}

func (p *Processor) handle(ctx context.Context, obj discovery.Object) {
	defer p.opts.Queue.Done()

	platform := string(p.Kind())
	if obj.Kind != discovery.KindPeripheral || obj.Device == nil {
		p.logger.Debug("ignoring discovery object",
			"platform", platform,
			"kind", obj.Kind.String(),
			"address", fmt.Sprintf("%04X", obj.Address))
		p.record(resultFiltered)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.process(ctx, obj.Device); err != nil {
		p.logger.Error("failed to set up device entities",
			"platform", platform,
			"device", obj.Device.Identity().String(),
			"error", err)
		p.record(resultError)
		return
	}
	p.record(resultOK)
}

func (p *Processor) process(ctx context.Context, d twc.Device) error {
	entities, err := p.opts.Builder.Build(d)
	if err != nil {
		return fmt.Errorf("building entities: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}

	for _, e := range entities {
		rec, err := p.opts.Registry.GetOrCreate(ctx, e.Info())
		if err != nil {
			return fmt.Errorf("registering device for %s: %w", e.UniqueID(), err)
		}
		e.SetDeviceID(rec.ID)
	}

	if err := p.opts.Host.AddEntities(ctx, entities); err != nil {
		return fmt.Errorf("adding entities: %w", err)
	}

	p.logger.Info("device entities added",
		"platform", string(p.Kind()),
		"device", d.Identity().String(),
		"count", len(entities))
	return nil
}

func (p *Processor) record(result string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordDiscoveryProcessed(string(p.Kind()), result)
	}
}

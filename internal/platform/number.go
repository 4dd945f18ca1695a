package platform

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/twc"
)

// Number entity keys.
const (
	KeyDefaultCurrent = "default_current_setting"
	KeySessionCurrent = "session_current_setting"
)

// NumberBuilder builds the default and session setpoint entities.
type NumberBuilder struct {
	Controller twc.Controller
}

// Kind implements Builder.
func (NumberBuilder) Kind() entity.Kind { return entity.KindNumber }

// Build implements Builder.
func (b NumberBuilder) Build(d twc.Device) ([]*entity.Entity, error) {
	if b.Controller == nil {
		return nil, fmt.Errorf("%w: controller", ErrMissingDependency)
	}
	serial := d.Identity().Serial
	categories := []twc.Category{twc.CategoryStatus, twc.CategoryMeter, twc.CategoryPeripheral}

	defaultCurrent, err := entity.New(d, entity.Descriptor{
		Key:         KeyDefaultCurrent,
		Name:        serial + " Default Current Setting",
		Kind:        entity.KindNumber,
		DeviceClass: "current",
		Unit:        "A",
		Categories:  categories,
		Read:        func(d twc.Device) any { return float64(d.SetpointCurrent()) / 100 },
		Write:       writeDefaultCurrent,
		Limits:      currentLimits,
		Restorable:  true,
	})
	if err != nil {
		return nil, err
	}

	sessionCurrent, err := entity.New(d, entity.Descriptor{
		Key:         KeySessionCurrent,
		Name:        serial + " Session Current Setting",
		Kind:        entity.KindNumber,
		DeviceClass: "current",
		Unit:        "A",
		Categories:  categories,
		Read:        func(d twc.Device) any { return float64(d.CurrentAvailable()) / 100 },
		Write:       SessionCurrentWriter(b.Controller),
		Limits:      currentLimits,
	})
	if err != nil {
		return nil, err
	}

	return []*entity.Entity{defaultCurrent, sessionCurrent}, nil
}

func currentLimits(d twc.Device) entity.Limits {
	l := entity.Limits{Min: 0, Step: 1}
	if maxCurrent := d.MaxCurrent(); maxCurrent > 0 {
		l.Max = float64(maxCurrent) / 100
		l.Bounded = true
	}
	return l
}

func centiamps(amps float64) int {
	return int(math.Round(amps * 100))
}

// writeDefaultCurrent stores the setpoint on the device only.
func writeDefaultCurrent(_ context.Context, d twc.Device, v float64) error {
	d.SetSetpointCurrent(centiamps(v))
	return nil
}

// SessionCurrentWriter returns the writer for the session setpoint.
// Zero stops charging; any other value closes the contactors and then sets
// the session current, each step awaited.
func SessionCurrentWriter(c twc.Controller) entity.Writer {
	return func(ctx context.Context, d twc.Device, v float64) error {
		addr := d.Identity().Address
		if v == 0 {
			return c.OpenContactors(ctx, addr)
		}
		if err := c.CloseContactors(ctx, addr); err != nil {
			return err
		}
		if err := c.SetSessionCurrent(ctx, addr, centiamps(v)); err != nil {
			return fmt.Errorf("%w: %w", ErrPartialCommand, err)
		}
		return nil
	}
}

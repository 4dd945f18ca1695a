package entity

import (
	"context"
	"math"

	"github.com/nerrad567/twc-director/internal/twc"
)

// Kind is the platform an entity belongs to.
type Kind string

// Entity kinds.
const (
	KindSensor Kind = "sensor"
	KindNumber Kind = "number"
	KindEvent  Kind = "event"
)

// Reader computes the current value from live device state.
type Reader func(d twc.Device) any

// Writer applies a value to the device.
type Writer func(ctx context.Context, d twc.Device, value float64) error

// Limits bound the values a number entity accepts.
type Limits struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max,omitempty"`
	Step float64 `json:"step"`

	// Bounded is false while the maximum is unknown.
	Bounded bool `json:"bounded"`
}

// Contains reports whether v is within the limits. NaN and infinities are
// never within them.
func (l Limits) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < l.Min {
		return false
	}
	return !l.Bounded || v <= l.Max
}

// Descriptor is the static definition an entity is built from.
type Descriptor struct {
	// Key is appended to the device identity to form the unique ID.
	Key         string
	Name        string
	Kind        Kind
	DeviceClass string
	Unit        string
	StateClass  string

	// Categories are the message categories that refresh the entity.
	Categories []twc.Category

	Read  Reader
	Write Writer

	// Limits is consulted for number entities only.
	Limits func(d twc.Device) Limits

	// Restorable entities get their last known value back on attach.
	Restorable bool

	// Triggers lists the event types an event entity can fire.
	Triggers []string
}

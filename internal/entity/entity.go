package entity

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/twc"
)

// State is the entity lifecycle state.
type State int

// Lifecycle states. The only valid path is
// Detached -> Attaching -> Attached -> Detaching -> Detached.
const (
	StateDetached State = iota
	StateAttaching
	StateAttached
	StateDetaching
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sink is told every time a device push refreshes an attached entity.
type Sink interface {
	EntityUpdated(e *Entity, category twc.Category) error
}

// Entity binds one descriptor to one device. It is the listener handle
// registered with the device's callback registry while attached.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Entity struct {
	desc     Descriptor
	device   twc.Device
	uniqueID string

	mu       sync.Mutex
	state    State
	sink     Sink
	regs     []twc.Registration
	deviceID string
}

// New builds a detached entity for d.
func New(d twc.Device, desc Descriptor) (*Entity, error) {
	switch {
	case d == nil:
		return nil, fmt.Errorf("%w: nil device", ErrInvalidDescriptor)
	case desc.Key == "":
		return nil, fmt.Errorf("%w: key is required", ErrInvalidDescriptor)
	case desc.Read == nil:
		return nil, fmt.Errorf("%w: %s has no reader", ErrInvalidDescriptor, desc.Key)
	case len(desc.Categories) == 0:
		return nil, fmt.Errorf("%w: %s has no categories", ErrInvalidDescriptor, desc.Key)
	}

	return &Entity{
		desc:     desc,
		device:   d,
		uniqueID: d.Identity().String() + "_" + desc.Key,
	}, nil
}

// UniqueID returns "<serial>_<ADDR>_<key>".
func (e *Entity) UniqueID() string { return e.uniqueID }

// Name returns the display name.
func (e *Entity) Name() string { return e.desc.Name }

// Kind returns the platform kind.
func (e *Entity) Kind() Kind { return e.desc.Kind }

// Descriptor returns the static definition.
func (e *Entity) Descriptor() Descriptor { return e.desc }

// Device returns the bound device.
func (e *Entity) Device() twc.Device { return e.device }

// Info returns registry info built from live device state.
func (e *Entity) Info() device.Info { return device.InfoFor(e.device) }

// Writable reports whether SetValue is supported.
func (e *Entity) Writable() bool { return e.desc.Write != nil }

// Restorable reports whether the entity keeps a last known value.
func (e *Entity) Restorable() bool { return e.desc.Restorable && e.desc.Write != nil }

// Value reads the current value from the device.
func (e *Entity) Value() any { return e.desc.Read(e.device) }

// Limits returns the number limits, if the entity has any.
func (e *Entity) Limits() (Limits, bool) {
	if e.desc.Limits == nil {
		return Limits{}, false
	}
	return e.desc.Limits(e.device), true
}

// DeviceID returns the registry record ID, set once registered.
func (e *Entity) DeviceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deviceID
}

// SetDeviceID records the registry record ID.
func (e *Entity) SetDeviceID(id string) {
	e.mu.Lock()
	e.deviceID = id
	e.mu.Unlock()
}

// State returns the lifecycle state.
func (e *Entity) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Registrations returns the callback registrations held while attached.
func (e *Entity) Registrations() []twc.Registration {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]twc.Registration, len(e.regs))
	copy(out, e.regs)
	return out
}

// Attach registers the entity for its categories on the device. Pushes
// are forwarded to sink until Detach.
func (e *Entity) Attach(sink Sink) error {
	if sink == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidTransition)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDetached {
		return fmt.Errorf("%w: attach while %s", ErrInvalidTransition, e.state)
	}
	e.state = StateAttaching

	regs := make([]twc.Registration, 0, len(e.desc.Categories))
	for _, c := range e.desc.Categories {
		regs = append(regs, twc.Registration{Category: c, Listener: e})
	}
	e.device.RegisterCallbacks(regs...)

	e.regs = regs
	e.sink = sink
	e.state = StateAttached
	return nil
}

// Detach removes exactly the registrations made by Attach.
func (e *Entity) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAttached {
		return fmt.Errorf("%w: detach while %s", ErrInvalidTransition, e.state)
	}
	e.state = StateDetaching

	e.device.DeregisterCallbacks(e.regs...)

	e.regs = nil
	e.sink = nil
	e.state = StateDetached
	return nil
}

// DeviceUpdated implements twc.Listener.
func (e *Entity) DeviceUpdated(category twc.Category) error {
	e.mu.Lock()
	sink, state := e.sink, e.state
	e.mu.Unlock()

	if state != StateAttached || sink == nil {
		return nil
	}
	return sink.EntityUpdated(e, category)
}

// SetValue writes v through the entity's writer. The caller publishes the
// resulting state.
func (e *Entity) SetValue(ctx context.Context, v float64) error {
	if e.desc.Write == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.uniqueID)
	}
	if e.State() != StateAttached {
		return fmt.Errorf("%w: %s", ErrNotAttached, e.uniqueID)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v for %s", ErrOutOfRange, v, e.uniqueID)
	}
	if limits, ok := e.Limits(); ok && !limits.Contains(v) {
		return fmt.Errorf("%w: %v for %s", ErrOutOfRange, v, e.uniqueID)
	}
	return e.desc.Write(ctx, e.device, v)
}

// Restore applies a last known value before the entity is attached.
// Limits are not checked; the stored value was valid when written.
func (e *Entity) Restore(ctx context.Context, v float64) error {
	if !e.Restorable() {
		return fmt.Errorf("%w: %s", ErrNotRestorable, e.uniqueID)
	}
	if st := e.State(); st != StateDetached {
		return fmt.Errorf("%w: restore while %s", ErrInvalidTransition, st)
	}
	return e.desc.Write(ctx, e.device, v)
}

var _ twc.Listener = (*Entity)(nil)

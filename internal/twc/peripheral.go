package twc

import (
	"math"
	"sync"
	"time"
)

// Peripheral is one Tesla Wall Charger slave on the RS485 bus.
//
// State is mutated only through Apply. Apply holds the state lock while it
// writes and releases it before dispatching callbacks, so listeners can
// read state freely. Applies for one peripheral are serialized: listeners
// always observe the state produced by the message that triggered them.
type Peripheral struct {
	identity Identity

	mu             sync.RWMutex
	firmware       string
	restartCounter int
	vin            string
	carConnected   bool
	setpoint       int
	maxCurrent     int
	telemetry      map[string]float64
	lastSeen       time.Time

	applyMu   sync.Mutex
	callbacks *CallbackRegistry
}

// NewPeripheral creates a peripheral with an empty callback registry.
func NewPeripheral(serial string, address uint16) *Peripheral {
	return &Peripheral{
		identity:  Identity{Serial: serial, Address: address},
		telemetry: make(map[string]float64),
		callbacks: NewCallbackRegistry(),
	}
}

// Callbacks exposes the registry for logger and metrics wiring.
func (p *Peripheral) Callbacks() *CallbackRegistry {
	return p.callbacks
}

// Apply folds msg into the peripheral state and then runs the category's
// callbacks. Returns the number of failed callbacks.
func (p *Peripheral) Apply(category Category, msg Message) int {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	for k, v := range msg.Fields {
		p.telemetry[k] = v
	}
	if msg.VIN != nil {
		p.vin = *msg.VIN
	}
	if msg.CarConnected != nil {
		p.carConnected = *msg.CarConnected
	}
	if msg.FirmwareVersion != "" {
		p.firmware = msg.FirmwareVersion
	}
	if msg.RestartCounter != nil {
		p.restartCounter = *msg.RestartCounter
	}
	if msg.MaxCurrent != nil {
		p.maxCurrent = *msg.MaxCurrent
	}
	p.lastSeen = time.Now()
	p.mu.Unlock()

	return p.callbacks.Dispatch(category)
}

// Identity returns the serial/address pair.
func (p *Peripheral) Identity() Identity {
	return p.identity
}

// FirmwareVersion returns the reported firmware version.
func (p *Peripheral) FirmwareVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.firmware
}

// RestartCounter returns the charger's reported restart count.
func (p *Peripheral) RestartCounter() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.restartCounter
}

// VIN returns the VIN of the connected vehicle, or "".
func (p *Peripheral) VIN() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vin
}

// CarConnected reports whether a vehicle is plugged in.
func (p *Peripheral) CarConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.carConnected
}

// Value returns a telemetry field.
func (p *Peripheral) Value(field string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.telemetry[field]
	return v, ok
}

// Telemetry returns a copy of every reported field.
func (p *Peripheral) Telemetry() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.telemetry))
	for k, v := range p.telemetry {
		out[k] = v
	}
	return out
}

// SetpointCurrent returns the default charge current in centiamps.
func (p *Peripheral) SetpointCurrent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.setpoint
}

// SetSetpointCurrent changes the default charge current. It is held
// locally and does not dispatch callbacks.
func (p *Peripheral) SetSetpointCurrent(centiamps int) {
	p.mu.Lock()
	p.setpoint = centiamps
	p.mu.Unlock()
}

// MaxCurrent returns the rated maximum in centiamps, 0 until reported.
func (p *Peripheral) MaxCurrent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxCurrent
}

// CurrentAvailable returns the reported session current in centiamps.
func (p *Peripheral) CurrentAvailable() int {
	v, _ := p.Value(FieldCurrentAvailable)
	return int(math.Round(v))
}

// LastSeen returns when the last message was applied.
func (p *Peripheral) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// RegisterCallbacks adds listeners to this peripheral's registry.
func (p *Peripheral) RegisterCallbacks(regs ...Registration) int {
	return p.callbacks.Register(regs...)
}

// DeregisterCallbacks removes listeners from this peripheral's registry.
func (p *Peripheral) DeregisterCallbacks(regs ...Registration) int {
	return p.callbacks.Deregister(regs...)
}

var _ Device = (*Peripheral)(nil)

package twc

import (
	"context"
	"fmt"
)

// Identity uniquely names a peripheral on the bus.
type Identity struct {
	Serial  string
	Address uint16
}

// String renders the identity as "<serial>_<ADDR>", the form used for
// registry identifiers and entity unique IDs.
func (id Identity) String() string {
	return fmt.Sprintf("%s_%04X", id.Serial, id.Address)
}

// Device is the capability surface entities and platforms need from a
// peripheral. *Peripheral implements it; tests use fakes.
type Device interface {
	Identity() Identity
	FirmwareVersion() string
	RestartCounter() int
	VIN() string
	CarConnected() bool

	// Value returns a telemetry field and whether it has been reported.
	Value(field string) (float64, bool)

	// SetpointCurrent is the locally held default charge current (centiamps).
	SetpointCurrent() int
	SetSetpointCurrent(centiamps int)

	// MaxCurrent is the charger's rated maximum (centiamps), 0 if unknown.
	MaxCurrent() int

	// CurrentAvailable is the session current the charger reports (centiamps).
	CurrentAvailable() int

	RegisterCallbacks(regs ...Registration) int
	DeregisterCallbacks(regs ...Registration) int
}

// Controller issues contactor and session-current commands. Every call
// blocks until the gateway acknowledges, ctx is done, or retries run out.
type Controller interface {
	OpenContactors(ctx context.Context, address uint16) error
	CloseContactors(ctx context.Context, address uint16) error
	SetSessionCurrent(ctx context.Context, address uint16, centiamps int) error
}

package twc

import "errors"

// Sentinel errors for device manager operations.
var (
	// ErrCommandTimeout is returned when the gateway never acknowledged a
	// command, after all retries.
	ErrCommandTimeout = errors.New("twc: command not acknowledged")

	// ErrCommandRejected is returned when the gateway answered with a
	// negative ack.
	ErrCommandRejected = errors.New("twc: command rejected by gateway")

	// ErrManagerStopped is returned for commands issued during or after
	// shutdown.
	ErrManagerStopped = errors.New("twc: device manager stopped")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("twc: device manager already started")

	// ErrInvalidMessage is returned for telemetry that cannot be decoded.
	ErrInvalidMessage = errors.New("twc: invalid gateway message")
)

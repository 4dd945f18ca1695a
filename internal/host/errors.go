package host

import "errors"

var (
	// ErrEntityNotFound is returned for unknown unique IDs.
	ErrEntityNotFound = errors.New("host: entity not found")

	// ErrInvalidValue is returned when a written payload is not a number.
	ErrInvalidValue = errors.New("host: invalid value")

	// ErrWriteQueueFull is returned when an entity's write worker is backed up.
	ErrWriteQueueFull = errors.New("host: write queue full")

	// ErrWritesStopped is returned for writes received before Start or
	// after Teardown.
	ErrWritesStopped = errors.New("host: writes stopped")

	// ErrStateNotFound is returned by StateStore.Load when nothing is stored.
	ErrStateNotFound = errors.New("host: no stored state")
)

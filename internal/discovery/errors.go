package discovery

import "errors"

var (
	// ErrNilDevice is returned when a peripheral object carries no device.
	ErrNilDevice = errors.New("discovery: peripheral object has no device")

	// ErrDuplicateConsumer is returned when a consumer name is reused.
	ErrDuplicateConsumer = errors.New("discovery: consumer already registered")
)

package platform

import "errors"

var (
	// ErrPartialCommand is returned when a session setpoint write closed
	// the contactors but failed to set the session current. The charger
	// may now charge at its previous current.
	ErrPartialCommand = errors.New("platform: contactors closed but session current not set")

	// ErrMissingDependency is returned by NewProcessor for incomplete options.
	ErrMissingDependency = errors.New("platform: missing dependency")
)

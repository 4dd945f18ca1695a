package entity

import "errors"

var (
	// ErrInvalidTransition is returned when Attach or Detach is called in
	// the wrong lifecycle state.
	ErrInvalidTransition = errors.New("entity: invalid lifecycle transition")

	// ErrNotAttached is returned for writes to a detached entity.
	ErrNotAttached = errors.New("entity: not attached")

	// ErrReadOnly is returned for writes to an entity without a writer.
	ErrReadOnly = errors.New("entity: read-only")

	// ErrOutOfRange is returned when a written value violates the limits.
	ErrOutOfRange = errors.New("entity: value out of range")

	// ErrNotRestorable is returned by Restore on entities that keep no
	// last state.
	ErrNotRestorable = errors.New("entity: not restorable")

	// ErrInvalidDescriptor is returned by New for incomplete descriptors.
	ErrInvalidDescriptor = errors.New("entity: invalid descriptor")
)

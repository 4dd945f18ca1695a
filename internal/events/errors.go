package events

import "errors"

var (
	// ErrNotConnected is returned by Emit while no AMQP channel is open.
	ErrNotConnected = errors.New("events: not connected to broker")

	// ErrClosed is returned once the sink has been closed.
	ErrClosed = errors.New("events: sink closed")
)

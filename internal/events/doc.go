// Package events delivers device trigger events to an AMQP broker.
//
// AMQPSink implements host.EventSink. Events are JSON encoded and published
// with persistent delivery to a durable fanout exchange (twcdirector.events
// by default). The connection is dialled with exponential backoff and
// re-established in the background when the broker drops it; events
// emitted while disconnected fail with ErrNotConnected and are counted by
// the host's metrics.
package events

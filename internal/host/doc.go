// Package host activates entities and publishes their state.
//
// Platforms hand freshly built entities to Host.AddEntities. The host
// restores the last stored value of restorable entities, attaches them
// (registering their device callbacks) and publishes an initial state.
// From then on every device push arrives through EntityUpdated and is
// published as retained JSON on twcdirector/entity/<unique_id>/state,
// written to InfluxDB when numeric, and broadcast to WebSocket clients.
//
// Event entities additionally fan out an Event to every EventSink:
// MQTT (twcdirector/event/<device_id>), AMQP and WebSocket.
//
// Writes arrive on twcdirector/entity/<unique_id>/set or through the HTTP
// API and are routed with SetValue.
package host

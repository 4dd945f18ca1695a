// Package platform turns discovered chargers into entities.
//
// There are three platforms, each a Builder run by its own Processor:
//
//   - SensorBuilder: one read-only entity per SensorTable row
//   - NumberBuilder: default and session current setpoints
//   - EventBuilder:  car connected/disconnected events
//
// A Processor takes objects from its discovery queue, ignores anything that
// is not a peripheral, registers the device, and hands the entities to the
// host. Every object is acknowledged on its queue whatever the outcome.
package platform

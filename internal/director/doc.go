// Package director wires one running TWC Director pipeline together.
//
// A Session replaces process-wide shared state with explicit
// dependencies. It builds the discovery broadcaster, registers one queue
// per platform (sensor, number, event), creates the platform processors
// and the gateway link, and only then starts the link, so every consumer
// sees every device from the first discovery onward.
//
// Stop unwinds in the opposite order: processors are cancelled and
// awaited, every entity is detached from its device, and the gateway is
// told to shut down.
package director

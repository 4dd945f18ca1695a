// Package entity binds device state to the values the director exposes.
//
// An Entity is a composition of a twc.Device, a read strategy and an
// optional write strategy, described by a Descriptor. Its unique ID is the
// device identity plus the descriptor key, e.g. "A1234_8A3F_total_kwh".
//
// # Lifecycle
//
//	Detached -> Attaching -> Attached -> Detaching -> Detached
//
// Attach registers the entity as listener for each descriptor category and
// remembers those registrations; Detach removes exactly that set. While
// attached, every device push for a registered category is forwarded to
// the Sink given to Attach.
package entity

package platform

import (
	"sort"

	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/twc"
)

// Event entity key and emitted event types.
const (
	KeyConnectionEvent = "connection_event"

	EventCarConnected    = "car_connected"
	EventCarDisconnected = "car_disconnected"
)

// Triggers maps device trigger types to the event they match.
var Triggers = map[string]string{
	"connected":    EventCarConnected,
	"disconnected": EventCarDisconnected,
}

// TriggerTypes returns the trigger types in stable order.
func TriggerTypes() []string {
	out := make([]string, 0, len(Triggers))
	for t := range Triggers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// EventBuilder builds the car connection event entity.
type EventBuilder struct{}

// Kind implements Builder.
func (EventBuilder) Kind() entity.Kind { return entity.KindEvent }

// Build implements Builder.
func (EventBuilder) Build(d twc.Device) ([]*entity.Entity, error) {
	e, err := entity.New(d, entity.Descriptor{
		Key:        KeyConnectionEvent,
		Name:       d.Identity().Serial + " Car Connection",
		Kind:       entity.KindEvent,
		Categories: []twc.Category{twc.CategoryCarConnected, twc.CategoryPeripheral},
		Read:       ConnectionEvent,
		Triggers:   TriggerTypes(),
	})
	if err != nil {
		return nil, err
	}
	return []*entity.Entity{e}, nil
}

// ConnectionEvent returns the event type for the live connection flag.
func ConnectionEvent(d twc.Device) any {
	if d.CarConnected() {
		return EventCarConnected
	}
	return EventCarDisconnected
}

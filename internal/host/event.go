package host

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/twc-director/internal/infrastructure/mqtt"
)

// Event is a device trigger fired by an event entity.
type Event struct {
	EventID   string    `json:"event_id"`
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a new event with an ID and the current time.
func NewEvent(uniqueID, deviceID, event string) Event {
	return Event{
		EventID:   uuid.NewString(),
		ID:        uniqueID,
		DeviceID:  deviceID,
		Event:     event,
		Timestamp: time.Now().UTC(),
	}
}

// EventSink delivers trigger events somewhere outside the process.
type EventSink interface {
	Name() string
	Emit(ctx context.Context, ev Event) error
}

// Publisher is the MQTT publish surface. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTEventSink publishes events to twcdirector/event/<device_id>.
type MQTTEventSink struct {
	Client Publisher
}

// Name implements EventSink.
func (MQTTEventSink) Name() string { return "mqtt" }

// Emit implements EventSink.
func (s MQTTEventSink) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Client.Publish(mqtt.Topics{}.Event(ev.DeviceID), data, 1, false)
}

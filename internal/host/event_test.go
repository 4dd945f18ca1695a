package host

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("A1234_8A3F_connection_event", "dev-1", "car_connected")

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "A1234_8A3F_connection_event", ev.ID)
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.Equal(t, "car_connected", ev.Event)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMQTTEventSink(t *testing.T) {
	client := newFakeMQTT()
	sink := MQTTEventSink{Client: client}
	assert.Equal(t, "mqtt", sink.Name())

	ev := NewEvent("A1234_8A3F_connection_event", "dev-1", "car_disconnected")
	require.NoError(t, sink.Emit(context.Background(), ev))

	msgs := client.onTopic("twcdirector/event/dev-1")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].retained)

	var got Event
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, "car_disconnected", got.Event)
}

func TestMQTTEventSink_CancelledContext(t *testing.T) {
	client := newFakeMQTT()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := MQTTEventSink{Client: client}.Emit(ctx, NewEvent("id", "dev", "car_connected"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.onTopic("twcdirector/event/dev"))
}

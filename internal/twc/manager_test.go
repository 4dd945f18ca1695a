package twc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/twc-director/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	unsubbed  []string
	onPublish func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, Retained: retained})
	hook := m.onPublish
	m.mu.Unlock()
	if hook != nil {
		go hook(topic, payload)
	}
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubbed = append(m.unsubbed, topic)
	return nil
}

func (m *MockMQTTClient) SetOnPublish(fn func(topic string, payload []byte)) {
	m.mu.Lock()
	m.onPublish = fn
	m.mu.Unlock()
}

func (m *MockMQTTClient) Published(prefix string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler whose filter matches topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range m.handlers {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no subscriber for %s", topic)
	}
	return handler(topic, payload)
}

func topicMatches(filter, topic string) bool {
	f, t := strings.Split(filter, "/"), strings.Split(topic, "/")
	if len(f) != len(t) {
		return false
	}
	for i := range f {
		if f[i] != "+" && f[i] != t[i] {
			return false
		}
	}
	return true
}

// mockSink records discoveries.
type mockSink struct {
	mu          sync.Mutex
	peripherals []*Peripheral
	controllers []uint16
	found       chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{found: make(chan struct{}, 16)}
}

func (s *mockSink) PeripheralFound(_ context.Context, p *Peripheral) error {
	s.mu.Lock()
	s.peripherals = append(s.peripherals, p)
	s.mu.Unlock()
	s.found <- struct{}{}
	return nil
}

func (s *mockSink) ControllerFound(_ context.Context, address uint16) error {
	s.mu.Lock()
	s.controllers = append(s.controllers, address)
	s.mu.Unlock()
	s.found <- struct{}{}
	return nil
}

func (s *mockSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.found:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for discovery")
	}
}

func newTestManager(t *testing.T, client *MockMQTTClient, sink *mockSink) *Manager {
	t.Helper()
	mgr, err := NewManager(ManagerOptions{
		MQTT:             client,
		Discovery:        sink,
		Interface:        "/dev/ttyUSB0",
		SharedMaxCurrent: 3200,
		CommandTimeout:   50 * time.Millisecond,
		CommandRetries:   1,
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return mgr
}

func telemetry(t *testing.T, client *MockMQTTClient, addr uint16, c Category, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, client.SimulateMessage(mqtt.Topics{}.GatewayTelemetry(addr, string(c)), data))
}

// autoAck answers every command with ok, or with the given rejection.
func autoAck(client *MockMQTTClient, reject string) {
	client.SetOnPublish(func(topic string, payload []byte) {
		if !strings.HasSuffix(topic, "/command") {
			return
		}
		var cmd CommandMessage
		if json.Unmarshal(payload, &cmd) != nil {
			return
		}
		ack, _ := json.Marshal(Ack{ID: cmd.ID, OK: reject == "", Error: reject})
		_ = client.SimulateMessage(mqtt.Topics{}.GatewayAck(cmd.Address), ack)
	})
}

// ===== Lifecycle Tests =====

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerOptions{Discovery: newMockSink()})
	assert.Error(t, err)

	_, err = NewManager(ManagerOptions{MQTT: NewMockMQTTClient()})
	assert.Error(t, err)
}

func TestManager_StartConfiguresGateway(t *testing.T) {
	client := NewMockMQTTClient()
	newTestManager(t, client, newMockSink())

	control := client.Published(mqtt.Topics{}.GatewayControl())
	require.Len(t, control, 1)

	var msg ControlMessage
	require.NoError(t, json.Unmarshal(control[0].Payload, &msg))
	assert.Equal(t, ControlConfigure, msg.Command)
	assert.Equal(t, 3200, msg.SharedMaxCurrent)
	assert.Equal(t, "/dev/ttyUSB0", msg.Interface)
}

func TestManager_StartTwice(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())
	assert.ErrorIs(t, mgr.Start(context.Background()), ErrAlreadyStarted)
}

func TestManager_ShutdownSignalsGateway(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())

	require.NoError(t, mgr.Shutdown(context.Background()))
	require.NoError(t, mgr.Shutdown(context.Background()))

	control := client.Published(mqtt.Topics{}.GatewayControl())
	require.Len(t, control, 2)
	var msg ControlMessage
	require.NoError(t, json.Unmarshal(control[1].Payload, &msg))
	assert.Equal(t, ControlShutdown, msg.Command)
	assert.Len(t, client.unsubbed, 2)

	err := mgr.OpenContactors(context.Background(), 0x8a3f)
	assert.ErrorIs(t, err, ErrManagerStopped)
}

// ===== Discovery Tests =====

func TestManager_DiscoversPeripheralOnce(t *testing.T) {
	client := NewMockMQTTClient()
	sink := newMockSink()
	mgr := newTestManager(t, client, sink)

	telemetry(t, client, 0x8a3f, CategoryPeripheral, Message{Serial: "A1234", FirmwareVersion: "4.5.3"})
	sink.wait(t)
	telemetry(t, client, 0x8a3f, CategoryMeter, Message{Serial: "A1234", Fields: map[string]float64{FieldTotalKWh: 5}})

	require.Eventually(t, func() bool {
		p, ok := mgr.Peripheral(0x8a3f)
		if !ok {
			return false
		}
		v, _ := p.Value(FieldTotalKWh)
		return v == 5
	}, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.peripherals, 1)
	assert.Equal(t, "A1234_8A3F", sink.peripherals[0].Identity().String())
	assert.Equal(t, "4.5.3", sink.peripherals[0].FirmwareVersion())
}

func TestManager_DropsUnknownAddressWithoutSerial(t *testing.T) {
	client := NewMockMQTTClient()
	sink := newMockSink()
	mgr := newTestManager(t, client, sink)

	telemetry(t, client, 0x0001, CategoryMeter, Message{Fields: map[string]float64{FieldTotalKWh: 1}})
	telemetry(t, client, 0x0002, CategoryPeripheral, Message{Serial: "B2"})
	sink.wait(t)

	_, ok := mgr.Peripheral(0x0001)
	assert.False(t, ok)
	assert.Len(t, mgr.Peripherals(), 1)
}

func TestManager_ControllerAnnouncedOnce(t *testing.T) {
	client := NewMockMQTTClient()
	sink := newMockSink()
	newTestManager(t, client, sink)

	telemetry(t, client, 0x7777, CategoryController, Message{})
	telemetry(t, client, 0x7777, CategoryController, Message{})
	telemetry(t, client, 0x0003, CategoryPeripheral, Message{Serial: "C3"})
	sink.wait(t)
	sink.wait(t)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []uint16{0x7777}, sink.controllers)
}

func TestManager_InvalidTelemetry(t *testing.T) {
	client := NewMockMQTTClient()
	newTestManager(t, client, newMockSink())

	err := client.SimulateMessage(mqtt.Topics{}.GatewayTelemetry(1, string(CategoryMeter)), []byte("{"))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestManager_PeripheralsSorted(t *testing.T) {
	client := NewMockMQTTClient()
	sink := newMockSink()
	mgr := newTestManager(t, client, sink)

	for _, addr := range []uint16{0x0300, 0x0100, 0x0200} {
		telemetry(t, client, addr, CategoryPeripheral, Message{Serial: fmt.Sprintf("S%d", addr)})
		sink.wait(t)
	}

	got := mgr.Peripherals()
	require.Len(t, got, 3)
	assert.Equal(t, uint16(0x0100), got[0].Identity().Address)
	assert.Equal(t, uint16(0x0300), got[2].Identity().Address)
}

// ===== Command Tests =====

func TestManager_CommandAcknowledged(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())
	autoAck(client, "")

	require.NoError(t, mgr.SetSessionCurrent(context.Background(), 0x8a3f, 1600))

	cmds := client.Published("twcdirector/gateway/8a3f/command")
	require.Len(t, cmds, 1)
	var cmd CommandMessage
	require.NoError(t, json.Unmarshal(cmds[0].Payload, &cmd))
	assert.Equal(t, CommandSessionCurrent, cmd.Command)
	assert.Equal(t, 1600, cmd.Payload["current"])
	assert.NotEmpty(t, cmd.ID)
}

func TestManager_CommandRejected(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())
	autoAck(client, "contactor fault")

	err := mgr.CloseContactors(context.Background(), 0x8a3f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandRejected)
	assert.Contains(t, err.Error(), "contactor fault")

	// Rejections are not retried.
	assert.Len(t, client.Published("twcdirector/gateway/8a3f/command"), 1)
}

func TestManager_CommandTimeoutRetries(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())

	err := mgr.OpenContactors(context.Background(), 0x0001)
	assert.ErrorIs(t, err, ErrCommandTimeout)

	cmds := client.Published("twcdirector/gateway/0001/command")
	require.Len(t, cmds, 2)

	var first, second CommandMessage
	require.NoError(t, json.Unmarshal(cmds[0].Payload, &first))
	require.NoError(t, json.Unmarshal(cmds[1].Payload, &second))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestManager_CommandContextCancelled(t *testing.T) {
	client := NewMockMQTTClient()
	mgr := newTestManager(t, client, newMockSink())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mgr.OpenContactors(ctx, 0x0001)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestManager_LateAckIgnored(t *testing.T) {
	client := NewMockMQTTClient()
	newTestManager(t, client, newMockSink())

	ack, _ := json.Marshal(Ack{ID: "unknown", OK: true})
	assert.NoError(t, client.SimulateMessage(mqtt.Topics{}.GatewayAck(1), ack))
}

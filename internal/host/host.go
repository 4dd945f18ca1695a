package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/infrastructure/influxdb"
	"github.com/nerrad567/twc-director/internal/infrastructure/mqtt"
	"github.com/nerrad567/twc-director/internal/twc"
)

// WebSocket channels the host broadcasts on.
const (
	ChannelEntityState   = "entity.state_changed"
	ChannelDeviceTrigger = "device.trigger"
)

const (
	defaultWriteTimeout = 30 * time.Second
	defaultWriteWorkers = 4
	defaultWriteQueue   = 16
	eventEmitTimeout    = 5 * time.Second
)

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the MQTT surface the host needs. *mqtt.Client implements it.
type MQTTClient interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// HistoryWriter records numeric entity state. *influxdb.Client implements it.
type HistoryWriter interface {
	WriteEntityState(s influxdb.EntityState)
}

// Broadcaster pushes to WebSocket clients. *api.Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Metrics receives host counters. *metrics.Metrics implements it.
type Metrics interface {
	AddEntities(platform string, delta int)
	RecordEvent(sink string, err error)
}

// Options configures a Host. Only MQTT is required.
type Options struct {
	MQTT      MQTTClient
	History   HistoryWriter
	Store     StateStore
	Events    []EventSink
	WebSocket Broadcaster
	Metrics   Metrics
	Logger    Logger

	// WriteTimeout bounds a value write received over MQTT.
	WriteTimeout time.Duration

	// WriteWorkers and WriteQueue size the pool that runs MQTT writes off
	// the delivery goroutine. Writes to one entity always share a worker.
	WriteWorkers int
	WriteQueue   int
}

// StatePayload is the published form of an entity's state.
type StatePayload struct {
	UniqueID    string            `json:"unique_id"`
	DeviceID    string            `json:"device_id,omitempty"`
	Identifier  string            `json:"device_identifier"`
	Name        string            `json:"name"`
	Platform    string            `json:"platform"`
	Value       any               `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	DeviceClass string            `json:"device_class,omitempty"`
	StateClass  string            `json:"state_class,omitempty"`
	Writable    bool              `json:"writable"`
	Limits      *entity.Limits    `json:"limits,omitempty"`
	Triggers    []string          `json:"triggers,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Host owns every active entity. It publishes entity state, restores the
// last value of restorable entities and routes value writes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Host struct {
	opts   Options
	logger Logger
	topics mqtt.Topics

	mu        sync.RWMutex
	entities  map[string]*entity.Entity
	lastSaved map[string]string

	writeMu     sync.RWMutex
	writes      []chan writeRequest
	writeCtx    context.Context
	writeCancel context.CancelFunc
	writeWG     sync.WaitGroup
}

type writeRequest struct {
	uniqueID string
	value    float64
}

// New creates a Host.
func New(opts Options) (*Host, error) {
	if opts.MQTT == nil {
		return nil, errors.New("host: MQTT client is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.WriteWorkers <= 0 {
		opts.WriteWorkers = defaultWriteWorkers
	}
	if opts.WriteQueue <= 0 {
		opts.WriteQueue = defaultWriteQueue
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Host{
		opts:      opts,
		logger:    logger,
		entities:  make(map[string]*entity.Entity),
		lastSaved: make(map[string]string),
	}, nil
}

// Start launches the write workers and subscribes to entity value writes.
func (h *Host) Start() error {
	h.startWriters()
	if err := h.opts.MQTT.Subscribe(h.topics.AllEntityCommands(), 1, h.handleCommand); err != nil {
		h.stopWriters()
		return fmt.Errorf("subscribe to entity commands: %w", err)
	}
	return nil
}

func (h *Host) startWriters() {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.writes != nil {
		return
	}

	h.writeCtx, h.writeCancel = context.WithCancel(context.Background())
	h.writes = make([]chan writeRequest, h.opts.WriteWorkers)
	for i := range h.writes {
		ch := make(chan writeRequest, h.opts.WriteQueue)
		h.writes[i] = ch
		h.writeWG.Add(1)
		go h.runWriter(h.writeCtx, ch)
	}
}

// stopWriters abandons queued writes and waits for in-flight ones to
// return.
func (h *Host) stopWriters() {
	h.writeMu.Lock()
	writes := h.writes
	h.writes = nil
	if h.writeCancel != nil {
		h.writeCancel()
	}
	for _, ch := range writes {
		close(ch)
	}
	h.writeMu.Unlock()

	h.writeWG.Wait()
}

func (h *Host) runWriter(parent context.Context, ch <-chan writeRequest) {
	defer h.writeWG.Done()
	for req := range ch {
		ctx, cancel := context.WithTimeout(parent, h.opts.WriteTimeout)
		if err := h.SetValue(ctx, req.uniqueID, req.value); err != nil {
			h.logger.Warn("entity write failed", "unique_id", req.uniqueID, "value", req.value, "error", err)
		}
		cancel()
	}
}

// enqueueWrite hands a write to the worker that owns uniqueID. It never
// blocks the caller.
func (h *Host) enqueueWrite(uniqueID string, v float64) error {
	h.writeMu.RLock()
	defer h.writeMu.RUnlock()
	if h.writes == nil {
		return ErrWritesStopped
	}

	hash := fnv.New32a()
	hash.Write([]byte(uniqueID))
	ch := h.writes[hash.Sum32()%uint32(len(h.writes))]

	select {
	case ch <- writeRequest{uniqueID: uniqueID, value: v}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrWriteQueueFull, uniqueID)
	}
}

// AddEntities activates entities. Unique IDs that are already active are
// skipped, so re-discovery never duplicates an entity.
func (h *Host) AddEntities(ctx context.Context, entities []*entity.Entity) error {
	var errs []error
	for _, e := range entities {
		if !h.reserve(e) {
			h.logger.Debug("entity already active", "unique_id", e.UniqueID())
			continue
		}

		if e.Restorable() {
			h.restore(ctx, e)
		}

		if err := e.Attach(h); err != nil {
			h.release(e)
			errs = append(errs, fmt.Errorf("attaching %s: %w", e.UniqueID(), err))
			continue
		}
		if h.opts.Metrics != nil {
			h.opts.Metrics.AddEntities(string(e.Kind()), 1)
		}

		if err := h.publishState(ctx, e); err != nil {
			h.logger.Warn("initial state not published", "unique_id", e.UniqueID(), "error", err)
		}
		h.logger.Debug("entity added", "unique_id", e.UniqueID(), "platform", string(e.Kind()))
	}
	return errors.Join(errs...)
}

func (h *Host) reserve(e *entity.Entity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entities[e.UniqueID()]; ok {
		return false
	}
	h.entities[e.UniqueID()] = e
	return true
}

func (h *Host) release(e *entity.Entity) {
	h.mu.Lock()
	delete(h.entities, e.UniqueID())
	h.mu.Unlock()
}

func (h *Host) restore(ctx context.Context, e *entity.Entity) {
	if h.opts.Store == nil {
		return
	}
	raw, err := h.opts.Store.Load(ctx, e.UniqueID())
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			h.logger.Warn("failed to load last state", "unique_id", e.UniqueID(), "error", err)
		}
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(v) {
		h.logger.Warn("ignoring unparsable last state", "unique_id", e.UniqueID(), "value", raw)
		return
	}
	if err := e.Restore(ctx, v); err != nil {
		h.logger.Warn("failed to restore last state", "unique_id", e.UniqueID(), "error", err)
		return
	}

	h.mu.Lock()
	h.lastSaved[e.UniqueID()] = raw
	h.mu.Unlock()
	h.logger.Info("entity state restored", "unique_id", e.UniqueID(), "value", v)
}

// EntityUpdated implements entity.Sink. It runs on the device's dispatch
// path for every registered push.
func (h *Host) EntityUpdated(e *entity.Entity, category twc.Category) error {
	ctx := context.Background()
	if e.Kind() == entity.KindEvent && category == twc.CategoryCarConnected {
		h.emitEvent(ctx, e)
	}
	return h.publishState(ctx, e)
}

// Snapshot renders the current state of e.
func (h *Host) Snapshot(e *entity.Entity) StatePayload {
	desc := e.Descriptor()
	info := e.Info()
	p := StatePayload{
		UniqueID:    e.UniqueID(),
		DeviceID:    e.DeviceID(),
		Identifier:  info.Identifier,
		Name:        e.Name(),
		Platform:    string(e.Kind()),
		Value:       e.Value(),
		Unit:        desc.Unit,
		DeviceClass: desc.DeviceClass,
		StateClass:  desc.StateClass,
		Writable:    e.Writable(),
		Triggers:    desc.Triggers,
		Attributes:  info.Attributes,
		Timestamp:   time.Now().UTC(),
	}
	if limits, ok := e.Limits(); ok {
		p.Limits = &limits
	}
	return p
}

func (h *Host) publishState(ctx context.Context, e *entity.Entity) error {
	state := h.Snapshot(e)

	if h.opts.History != nil {
		if v, ok := numeric(state.Value); ok {
			h.opts.History.WriteEntityState(influxdb.EntityState{
				UniqueID: state.UniqueID,
				DeviceID: state.Identifier,
				Platform: state.Platform,
				Value:    v,
				Time:     state.Timestamp,
			})
		}
	}
	if h.opts.WebSocket != nil {
		h.opts.WebSocket.Broadcast(ChannelEntityState, state)
	}
	if e.Restorable() {
		h.persist(ctx, state)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", state.UniqueID, err)
	}
	return h.opts.MQTT.Publish(h.topics.EntityState(state.UniqueID), data, 1, true)
}

func (h *Host) persist(ctx context.Context, state StatePayload) {
	if h.opts.Store == nil {
		return
	}
	value := fmt.Sprint(state.Value)

	h.mu.Lock()
	unchanged := h.lastSaved[state.UniqueID] == value
	h.mu.Unlock()
	if unchanged {
		return
	}

	if err := h.opts.Store.Save(ctx, state.UniqueID, value); err != nil {
		h.logger.Warn("failed to persist state", "unique_id", state.UniqueID, "error", err)
		return
	}
	h.mu.Lock()
	h.lastSaved[state.UniqueID] = value
	h.mu.Unlock()
}

func (h *Host) emitEvent(ctx context.Context, e *entity.Entity) {
	name, _ := e.Value().(string)
	ev := NewEvent(e.UniqueID(), e.DeviceID(), name)

	ctx, cancel := context.WithTimeout(ctx, eventEmitTimeout)
	defer cancel()

	for _, sink := range h.opts.Events {
		err := sink.Emit(ctx, ev)
		if err != nil {
			h.logger.Warn("event not delivered", "sink", sink.Name(), "event", ev.Event, "error", err)
		}
		if h.opts.Metrics != nil {
			h.opts.Metrics.RecordEvent(sink.Name(), err)
		}
	}
	if h.opts.WebSocket != nil {
		h.opts.WebSocket.Broadcast(ChannelDeviceTrigger, ev)
	}
	h.logger.Info("device event", "device_id", ev.DeviceID, "event", ev.Event)
}

// numeric extracts a float from entity values. Formatted sensor strings
// are parsed; symbolic states are not numeric.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Entity returns the active entity with uniqueID.
func (h *Host) Entity(uniqueID string) (*entity.Entity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[uniqueID]
	return e, ok
}

// Entities returns every active entity ordered by unique ID.
func (h *Host) Entities() []*entity.Entity {
	h.mu.RLock()
	out := make([]*entity.Entity, 0, len(h.entities))
	for _, e := range h.entities {
		out = append(out, e)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID() < out[j].UniqueID() })
	return out
}

// EntitiesForDevice returns the active entities bound to a registry record.
func (h *Host) EntitiesForDevice(deviceID string) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range h.Entities() {
		if e.DeviceID() == deviceID {
			out = append(out, e)
		}
	}
	return out
}

// SetValue writes v to the entity and publishes the resulting state.
func (h *Host) SetValue(ctx context.Context, uniqueID string, v float64) error {
	e, ok := h.Entity(uniqueID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, uniqueID)
	}
	if err := e.SetValue(ctx, v); err != nil {
		return err
	}
	h.logger.Info("entity value set", "unique_id", uniqueID, "value", v)
	return h.publishState(ctx, e)
}

// handleCommand accepts a bare number or {"value": n} on an entity's set
// topic. The write itself runs on a worker: a session write awaits a
// gateway ack that arrives through this same delivery path.
func (h *Host) handleCommand(topic string, payload []byte) error {
	uniqueID, err := mqtt.ParseEntityCommand(topic)
	if err != nil {
		return err
	}
	v, err := ParseValue(payload)
	if err != nil {
		return err
	}
	return h.enqueueWrite(uniqueID, v)
}

// ParseValue decodes a write payload. NaN and infinities are rejected.
func ParseValue(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		if !finite(v) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, text)
		}
		return v, nil
	}

	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Value == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, text)
	}
	return *body.Value, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Teardown detaches every entity and stops listening for writes.
func (h *Host) Teardown() {
	if err := h.opts.MQTT.Unsubscribe(h.topics.AllEntityCommands()); err != nil {
		h.logger.Debug("unsubscribe failed", "error", err)
	}
	h.stopWriters()

	h.mu.Lock()
	entities := h.entities
	h.entities = make(map[string]*entity.Entity)
	h.mu.Unlock()

	for _, e := range entities {
		if err := e.Detach(); err != nil {
			h.logger.Warn("detach failed", "unique_id", e.UniqueID(), "error", err)
			continue
		}
		if h.opts.Metrics != nil {
			h.opts.Metrics.AddEntities(string(e.Kind()), -1)
		}
	}
	h.logger.Info("entities detached", "count", len(entities))
}

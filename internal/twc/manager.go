package twc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/nerrad567/twc-director/internal/infrastructure/mqtt"
)

// Manager defaults.
const (
	defaultCommandTimeout = 5 * time.Second
	defaultInboxSize      = 256
	retryInitialInterval  = 200 * time.Millisecond
	retryMaxInterval      = 2 * time.Second
)

// MQTTClient is the subset of the MQTT client the manager uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// DiscoverySink is told about every device found on the bus. Calls may
// block (bounded queues); they must honour ctx.
type DiscoverySink interface {
	PeripheralFound(ctx context.Context, p *Peripheral) error
	ControllerFound(ctx context.Context, address uint16) error
}

// TelemetryRecorder stores raw telemetry. Optional.
type TelemetryRecorder interface {
	WriteTelemetry(serial string, address uint16, category string, fields map[string]float64)
}

// MetricsRecorder receives manager counters. Optional.
type MetricsRecorder interface {
	RecordTelemetry(category string)
	RecordCallbackFailure(category string)
	RecordCommand(command, result string, d time.Duration)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	MQTT      MQTTClient
	Discovery DiscoverySink
	Telemetry TelemetryRecorder
	Metrics   MetricsRecorder
	Logger    Logger

	// Interface and SharedMaxCurrent are sent to the gateway on Start.
	Interface        string
	SharedMaxCurrent int

	CommandTimeout time.Duration
	CommandRetries int
	InboxSize      int
}

type inbound struct {
	address  uint16
	category Category
	msg      Message
}

// Manager is the director's side of the RS485 gateway link. It turns
// gateway telemetry into Peripherals, announces new devices to the
// DiscoverySink, and implements Controller by sending acknowledged
// commands.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	opts   ManagerOptions
	logger Logger
	topics mqtt.Topics

	mu          sync.RWMutex
	peripherals map[uint16]*Peripheral
	controllers map[uint16]bool

	pendingMu sync.Mutex
	pending   map[string]chan Ack

	inbox    chan inbound
	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager creates a Manager. Call Start to begin listening.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.MQTT == nil {
		return nil, errors.New("twc: MQTT client is required")
	}
	if opts.Discovery == nil {
		return nil, errors.New("twc: discovery sink is required")
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.CommandRetries < 0 {
		opts.CommandRetries = 0
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:        opts,
		logger:      logger,
		peripherals: make(map[uint16]*Peripheral),
		controllers: make(map[uint16]bool),
		pending:     make(map[string]chan Ack),
		inbox:       make(chan inbound, opts.InboxSize),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start subscribes to gateway acks and telemetry, starts the listener and
// sends the bus configuration to the gateway.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// Acks first so no reply to an early command is missed.
	if err := m.opts.MQTT.Subscribe(m.topics.AllGatewayAcks(), 1, m.handleAck); err != nil {
		return fmt.Errorf("subscribe to gateway acks: %w", err)
	}
	if err := m.opts.MQTT.Subscribe(m.topics.AllGatewayTelemetry(), 1, m.handleTelemetry); err != nil {
		return fmt.Errorf("subscribe to gateway telemetry: %w", err)
	}

	m.wg.Add(1)
	go m.listen()

	if err := m.publishControl(ControlMessage{
		Command:          ControlConfigure,
		SharedMaxCurrent: m.opts.SharedMaxCurrent,
		Interface:        m.opts.Interface,
	}); err != nil {
		return fmt.Errorf("configure gateway: %w", err)
	}

	m.logger.Info("device manager started",
		"interface", m.opts.Interface,
		"shared_max_current", m.opts.SharedMaxCurrent)
	return ctx.Err()
}

// Shutdown tells the gateway to stop, fails pending commands with
// ErrManagerStopped and waits for the listener to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		if m.started.Load() {
			if pubErr := m.publishControl(ControlMessage{Command: ControlShutdown}); pubErr != nil {
				m.logger.Warn("failed to signal gateway shutdown", "error", pubErr)
			}
		}

		close(m.done)
		m.cancel()

		if m.started.Load() {
			for _, topic := range []string{m.topics.AllGatewayTelemetry(), m.topics.AllGatewayAcks()} {
				if unsubErr := m.opts.MQTT.Unsubscribe(topic); unsubErr != nil {
					m.logger.Debug("unsubscribe failed", "topic", topic, "error", unsubErr)
				}
			}
		}

		waited := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
			m.logger.Info("device manager stopped")
		case <-ctx.Done():
			err = fmt.Errorf("waiting for listener: %w", ctx.Err())
		}
	})
	return err
}

func (m *Manager) publishControl(msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.opts.MQTT.Publish(m.topics.GatewayControl(), data, 1, false)
}

// =============================================================================
// Telemetry
// =============================================================================

// handleTelemetry decodes a gateway message and queues it for the
// listener. It blocks while the inbox is full.
func (m *Manager) handleTelemetry(topic string, payload []byte) error {
	gt, err := mqtt.ParseGatewayTopic(topic)
	if err != nil {
		return err
	}
	if gt.Ack {
		return nil
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	select {
	case m.inbox <- inbound{address: gt.Address, category: Category(gt.Category), msg: msg}:
		return nil
	case <-m.done:
		return ErrManagerStopped
	}
}

func (m *Manager) listen() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case in := <-m.inbox:
			m.process(in)
		}
	}
}

func (m *Manager) process(in inbound) {
	if in.category == CategoryController {
		m.announceController(in.address)
		return
	}

	p, isNew := m.lookupOrCreate(in)
	if p == nil {
		m.logger.Debug("dropping message for unknown peripheral",
			"address", fmt.Sprintf("%04X", in.address),
			"category", string(in.category))
		return
	}

	p.Apply(in.category, in.msg)
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordTelemetry(string(in.category))
	}
	if m.opts.Telemetry != nil {
		m.opts.Telemetry.WriteTelemetry(p.Identity().Serial, in.address, string(in.category), in.msg.Fields)
	}

	if isNew {
		m.logger.Info("peripheral discovered",
			"serial", p.Identity().Serial,
			"address", fmt.Sprintf("%04X", in.address))
		if err := m.opts.Discovery.PeripheralFound(m.ctx, p); err != nil {
			m.logger.Warn("peripheral discovery not delivered",
				"device", p.Identity().String(), "error", err)
		}
	}
}

// lookupOrCreate returns the peripheral at in.address, creating it when
// the message carries a serial. It returns nil for unknown addresses
// without a serial.
func (m *Manager) lookupOrCreate(in inbound) (*Peripheral, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.peripherals[in.address]; ok {
		if in.msg.Serial != "" && in.msg.Serial != p.Identity().Serial {
			m.logger.Warn("serial changed at known address, keeping original",
				"address", fmt.Sprintf("%04X", in.address),
				"known", p.Identity().Serial,
				"reported", in.msg.Serial)
		}
		return p, false
	}
	if in.msg.Serial == "" {
		return nil, false
	}

	p := NewPeripheral(in.msg.Serial, in.address)
	p.Callbacks().SetLogger(m.logger)
	if m.opts.Metrics != nil {
		metrics := m.opts.Metrics
		p.Callbacks().SetFailureHook(func(c Category) { metrics.RecordCallbackFailure(string(c)) })
	}
	m.peripherals[in.address] = p
	return p, true
}

func (m *Manager) announceController(address uint16) {
	m.mu.Lock()
	seen := m.controllers[address]
	m.controllers[address] = true
	m.mu.Unlock()
	if seen {
		return
	}

	m.logger.Info("controller seen on bus", "address", fmt.Sprintf("%04X", address))
	if err := m.opts.Discovery.ControllerFound(m.ctx, address); err != nil {
		m.logger.Warn("controller discovery not delivered", "error", err)
	}
}

// Peripheral returns the peripheral at address.
func (m *Manager) Peripheral(address uint16) (*Peripheral, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peripherals[address]
	return p, ok
}

// Peripherals returns every known peripheral ordered by address.
func (m *Manager) Peripherals() []*Peripheral {
	m.mu.RLock()
	out := make([]*Peripheral, 0, len(m.peripherals))
	for _, p := range m.peripherals {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity().Address < out[j].Identity().Address
	})
	return out
}

// =============================================================================
// Commands
// =============================================================================

// OpenContactors stops charging on the peripheral at address.
func (m *Manager) OpenContactors(ctx context.Context, address uint16) error {
	return m.send(ctx, address, CommandOpenContactors, nil)
}

// CloseContactors allows charging on the peripheral at address.
func (m *Manager) CloseContactors(ctx context.Context, address uint16) error {
	return m.send(ctx, address, CommandCloseContactors, nil)
}

// SetSessionCurrent sets the session charge current in centiamps.
func (m *Manager) SetSessionCurrent(ctx context.Context, address uint16, centiamps int) error {
	return m.send(ctx, address, CommandSessionCurrent, map[string]int{"current": centiamps})
}

// send publishes a command and waits for its ack. Unacknowledged commands
// are re-sent with exponential backoff up to CommandRetries times; each
// attempt carries a fresh correlation ID.
func (m *Manager) send(ctx context.Context, address uint16, cmd Command, payload map[string]int) error {
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	// #nosec G115 -- CommandRetries is clamped to >= 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(m.opts.CommandRetries)), ctx)

	err := backoff.Retry(func() error {
		return m.attempt(ctx, address, cmd, payload)
	}, retry)

	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordCommand(string(cmd), commandResult(err), time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("%s to %04X: %w", cmd, address, err)
	}
	return nil
}

func (m *Manager) attempt(ctx context.Context, address uint16, cmd Command, payload map[string]int) error {
	select {
	case <-m.done:
		return backoff.Permanent(ErrManagerStopped)
	default:
	}

	id := uuid.NewString()
	replies := make(chan Ack, 1)

	m.pendingMu.Lock()
	m.pending[id] = replies
	m.pendingMu.Unlock()
	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	data, err := json.Marshal(CommandMessage{ID: id, Address: address, Command: cmd, Payload: payload})
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := m.opts.MQTT.Publish(m.topics.GatewayCommand(address), data, 1, false); err != nil {
		return err
	}

	timer := time.NewTimer(m.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case ack := <-replies:
		if !ack.OK {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCommandRejected, ack.Error))
		}
		return nil
	case <-timer.C:
		return ErrCommandTimeout
	case <-ctx.Done():
		return backoff.Permanent(ctx.Err())
	case <-m.done:
		return backoff.Permanent(ErrManagerStopped)
	}
}

// handleAck routes a gateway ack to the waiting command, if any.
func (m *Manager) handleAck(_ string, payload []byte) error {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: ack: %w", ErrInvalidMessage, err)
	}

	m.pendingMu.Lock()
	replies, ok := m.pending[ack.ID]
	m.pendingMu.Unlock()
	if !ok {
		// Late ack for a timed-out attempt.
		return nil
	}

	select {
	case replies <- ack:
	default:
	}
	return nil
}

func commandResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCommandTimeout):
		return "timeout"
	case errors.Is(err, ErrCommandRejected):
		return "rejected"
	case errors.Is(err, ErrManagerStopped):
		return "stopped"
	default:
		return "error"
	}
}

var _ Controller = (*Manager)(nil)

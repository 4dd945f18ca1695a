package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/discovery"
	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/twc"
)

type mockRegistrar struct {
	mu    sync.Mutex
	infos []device.Info
	err   error
}

func (r *mockRegistrar) GetOrCreate(_ context.Context, info device.Info) (*device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.infos = append(r.infos, info)
	return &device.Record{ID: "rec-" + info.Identifier, Identifier: info.Identifier}, nil
}

type mockHost struct {
	mu       sync.Mutex
	entities []*entity.Entity
	added    chan struct{}
	block    bool
}

func newMockHost() *mockHost {
	return &mockHost{added: make(chan struct{}, 16)}
}

func (h *mockHost) AddEntities(ctx context.Context, entities []*entity.Entity) error {
	if h.block {
		<-ctx.Done()
		return ctx.Err()
	}
	h.mu.Lock()
	h.entities = append(h.entities, entities...)
	h.mu.Unlock()
	h.added <- struct{}{}
	return nil
}

type mockMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *mockMetrics) RecordDiscoveryProcessed(_, result string) {
	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
}

func (m *mockMetrics) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.results...)
}

type failingBuilder struct{}

func (failingBuilder) Kind() entity.Kind { return entity.KindSensor }
func (failingBuilder) Build(twc.Device) ([]*entity.Entity, error) {
	return nil, errors.New("no table")
}

type processorFixture struct {
	broadcaster *discovery.Broadcaster
	registrar   *mockRegistrar
	host        *mockHost
	metrics     *mockMetrics
	queue       *discovery.Queue
}

func startProcessor(t *testing.T, b Builder, timeout time.Duration) *processorFixture {
	t.Helper()
	f := &processorFixture{
		broadcaster: discovery.NewBroadcaster(discovery.Options{}),
		registrar:   &mockRegistrar{},
		host:        newMockHost(),
		metrics:     &mockMetrics{},
	}
	q, err := f.broadcaster.RegisterConsumer(string(b.Kind()), 0)
	require.NoError(t, err)
	f.queue = q

	proc, err := NewProcessor(ProcessorOptions{
		Queue:    q,
		Builder:  b,
		Registry: f.registrar,
		Host:     f.host,
		Metrics:  f.metrics,
		Timeout:  timeout,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return f
}

func (f *processorFixture) publish(t *testing.T, obj discovery.Object) {
	t.Helper()
	_, err := f.broadcaster.Publish(context.Background(), obj)
	require.NoError(t, err)
}

func (f *processorFixture) join(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Join(ctx))
}

// ===== Processor Tests =====

func TestNewProcessor_Validation(t *testing.T) {
	_, err := NewProcessor(ProcessorOptions{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestProcessor_AddsSensorEntities(t *testing.T) {
	f := startProcessor(t, SensorBuilder{}, 0)

	f.publish(t, discovery.Peripheral(twc.NewPeripheral("A1234", 0x8a3f)))
	f.join(t)

	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	require.Len(t, f.host.entities, len(SensorTable))
	for _, e := range f.host.entities {
		assert.Equal(t, "rec-A1234_8A3F", e.DeviceID())
	}
	assert.Len(t, f.registrar.infos, len(SensorTable))
	assert.Equal(t, []string{resultOK}, f.metrics.snapshot())
}

func TestProcessor_FiltersControllers(t *testing.T) {
	f := startProcessor(t, EventBuilder{}, 0)

	f.publish(t, discovery.Controller(0x7777))
	f.join(t)

	assert.Empty(t, f.host.entities)
	assert.Equal(t, []string{resultFiltered}, f.metrics.snapshot())
}

func TestProcessor_FailureDoesNotStopLoop(t *testing.T) {
	f := startProcessor(t, EventBuilder{}, 0)
	f.registrar.err = errors.New("database locked")

	f.publish(t, discovery.Peripheral(twc.NewPeripheral("A1", 1)))
	f.join(t)

	f.registrar.mu.Lock()
	f.registrar.err = nil
	f.registrar.mu.Unlock()

	f.publish(t, discovery.Peripheral(twc.NewPeripheral("B2", 2)))
	f.join(t)

	assert.Equal(t, []string{resultError, resultOK}, f.metrics.snapshot())
	require.Len(t, f.host.entities, 1)
	assert.Equal(t, "B2_0002_connection_event", f.host.entities[0].UniqueID())
}

func TestProcessor_BuilderError(t *testing.T) {
	f := startProcessor(t, failingBuilder{}, 0)

	f.publish(t, discovery.Peripheral(twc.NewPeripheral("A1", 1)))
	f.join(t)

	assert.Equal(t, []string{resultError}, f.metrics.snapshot())
}

func TestProcessor_TimeoutAcknowledges(t *testing.T) {
	f := startProcessor(t, EventBuilder{}, 20*time.Millisecond)
	f.host.block = true

	f.publish(t, discovery.Peripheral(twc.NewPeripheral("A1", 1)))
	f.join(t)

	assert.Equal(t, []string{resultError}, f.metrics.snapshot())
}

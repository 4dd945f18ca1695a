package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/twc-director/internal/twc"
)

type fakeMetrics struct {
	mu         sync.Mutex
	published  map[string]int
	duplicates int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{published: make(map[string]int)}
}

func (m *fakeMetrics) RecordDiscoveryPublished(kind string) {
	m.mu.Lock()
	m.published[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDiscoveryDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
}

func (m *fakeMetrics) SetQueueDepth(string, int) {}

// ===== Registration Tests =====

func TestBroadcaster_RegisterConsumer(t *testing.T) {
	b := NewBroadcaster(Options{Capacity: 4})

	q, err := b.RegisterConsumer("sensor", 0)
	require.NoError(t, err)
	assert.Equal(t, "sensor", q.Name())
	assert.Equal(t, 4, q.Cap())

	q2, err := b.RegisterConsumer("number", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, q2.Cap())

	_, err = b.RegisterConsumer("sensor", 0)
	assert.ErrorIs(t, err, ErrDuplicateConsumer)
	assert.Equal(t, 2, b.Consumers())
}

// ===== Publish Tests =====

func TestBroadcaster_EveryConsumerGetsExactlyOne(t *testing.T) {
	m := newFakeMetrics()
	b := NewBroadcaster(Options{Metrics: m})
	ctx := context.Background()

	var queues []*Queue
	for _, name := range []string{"sensor", "number", "event"} {
		q, err := b.RegisterConsumer(name, 0)
		require.NoError(t, err)
		queues = append(queues, q)
	}

	p := twc.NewPeripheral("A1234", 0x8a3f)
	n, err := b.Publish(ctx, Peripheral(p))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-announcing the same identity is dropped.
	n, err = b.Publish(ctx, Peripheral(twc.NewPeripheral("A1234", 0x8a3f)))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, q := range queues {
		require.Equal(t, 1, q.Len(), q.Name())
		obj, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, KindPeripheral, obj.Kind)
		assert.Same(t, p, obj.Device)
		q.Done()
	}

	assert.Equal(t, 1, m.published["peripheral"])
	assert.Equal(t, 1, m.duplicates)
	assert.NoError(t, b.Join(ctx))
}

func TestBroadcaster_LateConsumerMissesEarlierDiscovery(t *testing.T) {
	b := NewBroadcaster(Options{})
	ctx := context.Background()

	early, err := b.RegisterConsumer("early", 0)
	require.NoError(t, err)
	_, err = b.Publish(ctx, Peripheral(twc.NewPeripheral("A1", 1)))
	require.NoError(t, err)

	late, err := b.RegisterConsumer("late", 0)
	require.NoError(t, err)
	_, err = b.Publish(ctx, Peripheral(twc.NewPeripheral("B2", 2)))
	require.NoError(t, err)

	assert.Equal(t, 2, early.Len())
	assert.Equal(t, 1, late.Len())
}

func TestBroadcaster_ControllerObjects(t *testing.T) {
	b := NewBroadcaster(Options{})
	q, err := b.RegisterConsumer("sensor", 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = b.Publish(ctx, Controller(0x7777))
	require.NoError(t, err)
	_, err = b.Publish(ctx, Controller(0x7777))
	require.NoError(t, err)

	assert.Equal(t, 1, q.Len())
	obj, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindController, obj.Kind)
	assert.Nil(t, obj.Device)
}

func TestBroadcaster_NilDevice(t *testing.T) {
	b := NewBroadcaster(Options{})
	_, err := b.Publish(context.Background(), Object{Kind: KindPeripheral})
	assert.ErrorIs(t, err, ErrNilDevice)
}

func TestBroadcaster_PublishBlocksUntilCancelled(t *testing.T) {
	b := NewBroadcaster(Options{Capacity: 1})
	_, err := b.RegisterConsumer("slow", 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = b.Publish(ctx, Peripheral(twc.NewPeripheral("A1", 1)))
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	n, err := b.Publish(cctx, Peripheral(twc.NewPeripheral("B2", 2)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, n)
}

func TestBroadcaster_RetryAfterCancelReachesSkippedConsumers(t *testing.T) {
	b := NewBroadcaster(Options{Capacity: 1})
	ctx := context.Background()

	a, err := b.RegisterConsumer("a", 0)
	require.NoError(t, err)
	full, err := b.RegisterConsumer("b", 0)
	require.NoError(t, err)
	c, err := b.RegisterConsumer("c", 4)
	require.NoError(t, err)

	_, err = b.Publish(ctx, Controller(0x1111))
	require.NoError(t, err)
	_, err = a.Get(ctx)
	require.NoError(t, err)
	a.Done()

	obj := Peripheral(twc.NewPeripheral("A1", 1))
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	n, err := b.Publish(cctx, obj)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)

	_, err = full.Get(ctx)
	require.NoError(t, err)
	full.Done()

	n, err = b.Publish(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, full.Len())
	assert.Equal(t, 2, c.Len())

	// Fully delivered now, so a further publish is a duplicate.
	n, err = b.Publish(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, full.Len())
}

func TestBroadcaster_ConcurrentRegistrationIsAllOrNothing(t *testing.T) {
	b := NewBroadcaster(Options{Capacity: 64})
	ctx := context.Background()

	var wg sync.WaitGroup
	queues := make([]*Queue, 8)
	for i := range queues {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := b.RegisterConsumer(string(rune('a'+i)), 0)
			if err == nil {
				queues[i] = q
			}
		}(i)
	}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = b.Publish(ctx, Controller(uint16(i)))
		}(i)
	}
	wg.Wait()

	for _, q := range queues {
		require.NotNil(t, q)
		assert.LessOrEqual(t, q.Len(), 32)
	}
}

// ===== Sink Tests =====

func TestManagerSink(t *testing.T) {
	b := NewBroadcaster(Options{})
	q, err := b.RegisterConsumer("sensor", 0)
	require.NoError(t, err)

	sink := ManagerSink{Broadcaster: b}
	ctx := context.Background()
	require.NoError(t, sink.PeripheralFound(ctx, twc.NewPeripheral("A1", 1)))
	require.NoError(t, sink.ControllerFound(ctx, 2))

	assert.Equal(t, 2, q.Len())
}

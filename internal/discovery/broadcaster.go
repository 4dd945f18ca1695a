package discovery

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCapacity is the queue size used when Options.Capacity is unset.
const DefaultCapacity = 16

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Metrics receives broadcaster counters. *metrics.Metrics implements it.
type Metrics interface {
	RecordDiscoveryPublished(kind string)
	RecordDiscoveryDuplicate()
	SetQueueDepth(consumer string, depth int)
}

// Options configures a Broadcaster.
type Options struct {
	Capacity int
	Logger   Logger
	Metrics  Metrics
}

// Broadcaster delivers each discovery object to every registered queue.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The queue set is append-only.
type Broadcaster struct {
	capacity int
	logger   Logger
	metrics  Metrics

	mu      sync.Mutex
	queues  []*Queue
	names   map[string]bool
	seen    map[string]bool
	partial map[string]*pendingPublish
}

// pendingPublish tracks a broadcast that stopped before every queue in its
// snapshot accepted the object.
type pendingPublish struct {
	remaining []*Queue
	busy      bool
}

// NewBroadcaster creates a Broadcaster with no consumers.
func NewBroadcaster(opts Options) *Broadcaster {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Broadcaster{
		capacity: opts.Capacity,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		names:    make(map[string]bool),
		seen:     make(map[string]bool),
		partial:  make(map[string]*pendingPublish),
	}
}

// RegisterConsumer adds a new queue to the broadcast set. A capacity of
// zero or less uses the broadcaster default. Objects published before
// registration are not replayed.
func (b *Broadcaster) RegisterConsumer(name string, capacity int) (*Queue, error) {
	if capacity <= 0 {
		capacity = b.capacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.names[name] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConsumer, name)
	}

	var onDepth func(string, int)
	if b.metrics != nil {
		onDepth = b.metrics.SetQueueDepth
	}
	q := newQueue(name, capacity, onDepth)
	b.queues = append(b.queues, q)
	b.names[name] = true

	b.logger.Debug("discovery consumer registered", "consumer", name, "capacity", capacity)
	return q, nil
}

// Consumers returns the number of registered queues.
func (b *Broadcaster) Consumers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// Publish pushes obj onto every queue registered at the moment of the
// call. An object already published is dropped. Returns the number of
// queues the object was delivered to.
//
// Publish blocks while any queue is full. If ctx is cancelled mid-way,
// queues already written keep the object and the error is returned. A
// later Publish of the same object resumes with the queues that were
// skipped and does not write the others again.
func (b *Broadcaster) Publish(ctx context.Context, obj Object) (int, error) {
	if obj.Kind == KindPeripheral && obj.Device == nil {
		return 0, ErrNilDevice
	}

	key := obj.key()
	b.mu.Lock()
	pending, resumed := b.partial[key]
	if b.seen[key] || (resumed && pending.busy) {
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.RecordDiscoveryDuplicate()
		}
		b.logger.Debug("duplicate discovery dropped", "key", key)
		return 0, nil
	}
	if !resumed {
		// Copy so a concurrent registration cannot be half-included.
		pending = &pendingPublish{remaining: make([]*Queue, len(b.queues))}
		copy(pending.remaining, b.queues)
		b.partial[key] = pending
	}
	pending.busy = true
	targets := pending.remaining
	b.mu.Unlock()

	delivered := 0
	for _, q := range targets {
		if err := q.push(ctx, obj); err != nil {
			b.mu.Lock()
			pending.remaining = targets[delivered:]
			pending.busy = false
			b.mu.Unlock()
			return delivered, fmt.Errorf("publish %s to %s: %w", obj.Kind, q.Name(), err)
		}
		delivered++
	}

	b.mu.Lock()
	delete(b.partial, key)
	b.seen[key] = true
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordDiscoveryPublished(obj.Kind.String())
	}
	return delivered, nil
}

// Join waits until every queue has acknowledged everything pushed to it.
func (b *Broadcaster) Join(ctx context.Context) error {
	b.mu.Lock()
	snapshot := make([]*Queue, len(b.queues))
	copy(snapshot, b.queues)
	b.mu.Unlock()

	for _, q := range snapshot {
		if err := q.Join(ctx); err != nil {
			return err
		}
	}
	return nil
}

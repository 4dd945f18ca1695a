package discovery

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of discovery objects owned by one consumer.
//
// Every object taken with Get must be acknowledged with Done. Join waits
// until every pushed object has been acknowledged.
type Queue struct {
	name  string
	items chan Object

	mu      sync.Mutex
	pending int
	drained chan struct{}

	onDepth func(name string, depth int)
}

func newQueue(name string, capacity int, onDepth func(string, int)) *Queue {
	drained := make(chan struct{})
	close(drained)
	return &Queue{
		name:    name,
		items:   make(chan Object, capacity),
		drained: drained,
		onDepth: onDepth,
	}
}

// Name returns the consumer name.
func (q *Queue) Name() string {
	return q.name
}

// Len returns the number of objects waiting to be taken.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}

// push enqueues obj, blocking while the queue is full.
func (q *Queue) push(ctx context.Context, obj Object) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.drained = make(chan struct{})
	}
	q.pending++
	q.mu.Unlock()

	select {
	case q.items <- obj:
		q.reportDepth()
		return nil
	case <-ctx.Done():
		q.release()
		return ctx.Err()
	}
}

// Get takes the next object, blocking until one is available or ctx is
// done.
func (q *Queue) Get(ctx context.Context) (Object, error) {
	select {
	case obj := <-q.items:
		q.reportDepth()
		return obj, nil
	case <-ctx.Done():
		return Object{}, ctx.Err()
	}
}

// Done acknowledges one object taken with Get. Like sync.WaitGroup, it
// panics when called more times than objects were pushed.
func (q *Queue) Done() {
	if !q.release() {
		panic("discovery: Done called more times than objects were queued")
	}
}

func (q *Queue) release() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return false
	}
	q.pending--
	if q.pending == 0 {
		close(q.drained)
	}
	return true
}

// Join blocks until every pushed object has been acknowledged, or ctx is
// done.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(q.name, len(q.items))
	}
}

package twc

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingListener struct {
	mu    sync.Mutex
	name  string
	calls []Category
	err   error
	panic bool
	order *[]string
}

func (l *recordingListener) DeviceUpdated(c Category) error {
	l.mu.Lock()
	l.calls = append(l.calls, c)
	if l.order != nil {
		*l.order = append(*l.order, l.name)
	}
	l.mu.Unlock()
	if l.panic {
		panic("boom")
	}
	return l.err
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// ===== Register / Deregister Tests =====

func TestCallbackRegistry_RegisterSkipsDuplicates(t *testing.T) {
	r := NewCallbackRegistry()
	l := &recordingListener{}

	added := r.Register(
		Registration{CategoryMeter, l},
		Registration{CategoryMeter, l},
		Registration{CategoryStatus, l},
		Registration{CategoryStatus, nil},
	)

	assert.Equal(t, 2, added)
	assert.Equal(t, 1, r.Count(CategoryMeter))
	assert.Equal(t, 2, r.Total())
}

func TestCallbackRegistry_DeregisterExactPairs(t *testing.T) {
	r := NewCallbackRegistry()
	a, b := &recordingListener{}, &recordingListener{}
	r.Register(Registration{CategoryMeter, a}, Registration{CategoryMeter, b}, Registration{CategoryVIN, a})

	removed := r.Deregister(Registration{CategoryMeter, a}, Registration{CategoryStatus, a})

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Count(CategoryMeter))
	assert.Equal(t, 1, r.Count(CategoryVIN))

	r.Dispatch(CategoryMeter)
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
}

func TestCallbackRegistry_DeregisterAllLeavesEmpty(t *testing.T) {
	r := NewCallbackRegistry()
	l := &recordingListener{}
	regs := []Registration{{CategoryMeter, l}, {CategoryStatus, l}}
	r.Register(regs...)

	assert.Equal(t, 2, r.Deregister(regs...))
	assert.Equal(t, 0, r.Total())
	assert.Equal(t, 0, r.Deregister(regs...))
}

// ===== Dispatch Tests =====

func TestCallbackRegistry_DispatchOrder(t *testing.T) {
	r := NewCallbackRegistry()
	var order []string
	first := &recordingListener{name: "first", order: &order}
	second := &recordingListener{name: "second", order: &order}
	r.Register(Registration{CategoryStatus, first}, Registration{CategoryStatus, second})

	assert.Equal(t, 0, r.Dispatch(CategoryStatus))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestCallbackRegistry_DispatchOtherCategoryUntouched(t *testing.T) {
	r := NewCallbackRegistry()
	l := &recordingListener{}
	r.Register(Registration{CategoryVIN, l})

	r.Dispatch(CategoryMeter)
	assert.Equal(t, 0, l.count())
}

func TestCallbackRegistry_FailureIsolation(t *testing.T) {
	r := NewCallbackRegistry()
	var hooked []Category
	r.SetFailureHook(func(c Category) { hooked = append(hooked, c) })

	failing := &recordingListener{err: errors.New("bad")}
	panicking := &recordingListener{panic: true}
	healthy := &recordingListener{}
	r.Register(
		Registration{CategoryMeter, failing},
		Registration{CategoryMeter, panicking},
		Registration{CategoryMeter, healthy},
	)

	failures := r.Dispatch(CategoryMeter)

	assert.Equal(t, 2, failures)
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, []Category{CategoryMeter, CategoryMeter}, hooked)
}

func TestCallbackRegistry_ConcurrentRegisterDispatch(t *testing.T) {
	r := NewCallbackRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		l := &recordingListener{}
		go func() {
			defer wg.Done()
			r.Register(Registration{CategoryMeter, l})
			r.Deregister(Registration{CategoryMeter, l})
		}()
		go func() {
			defer wg.Done()
			r.Dispatch(CategoryMeter)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Total())
}

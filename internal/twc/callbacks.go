package twc

import (
	"fmt"
	"sync"
)

// Listener receives a push for every message of a category it is
// registered for. Implementations must be comparable (pointer types);
// the registry uses == to match registrations.
type Listener interface {
	DeviceUpdated(category Category) error
}

// Registration pairs a category with the listener to invoke.
type Registration struct {
	Category Category
	Listener Listener
}

// CallbackRegistry maps message categories to listeners in registration
// order. It is owned by one device.
//
// Thread Safety:
//   - Register, Deregister and Dispatch may be called concurrently.
//     Dispatch works on a snapshot, so a listener removed mid-dispatch may
//     still receive that one push.
type CallbackRegistry struct {
	mu        sync.Mutex
	listeners map[Category][]Listener

	logger    Logger
	onFailure func(category Category)
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		listeners: make(map[Category][]Listener),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used to report listener failures.
func (r *CallbackRegistry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetFailureHook sets a function called once per failed listener.
func (r *CallbackRegistry) SetFailureHook(hook func(category Category)) {
	r.mu.Lock()
	r.onFailure = hook
	r.mu.Unlock()
}

// Register appends each pair to its category. A pair that is already
// registered is skipped. Returns how many pairs were added.
func (r *CallbackRegistry) Register(regs ...Registration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, reg := range regs {
		if reg.Listener == nil || r.indexLocked(reg) >= 0 {
			continue
		}
		r.listeners[reg.Category] = append(r.listeners[reg.Category], reg.Listener)
		added++
	}
	return added
}

// Deregister removes exactly the given pairs. Pairs that are not
// registered are ignored. Returns how many pairs were removed.
func (r *CallbackRegistry) Deregister(regs ...Registration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, reg := range regs {
		i := r.indexLocked(reg)
		if i < 0 {
			continue
		}
		list := r.listeners[reg.Category]
		// Copy rather than shift in place; Dispatch may hold the old slice.
		next := make([]Listener, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, reg.Category)
		} else {
			r.listeners[reg.Category] = next
		}
		removed++
	}
	return removed
}

func (r *CallbackRegistry) indexLocked(reg Registration) int {
	for i, l := range r.listeners[reg.Category] {
		if l == reg.Listener {
			return i
		}
	}
	return -1
}

// Count returns the number of listeners registered for category.
func (r *CallbackRegistry) Count(category Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[category])
}

// Total returns the number of registered pairs across all categories.
func (r *CallbackRegistry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.listeners {
		n += len(list)
	}
	return n
}

// Dispatch invokes the category's listeners in registration order. A
// listener that fails or panics is logged and skipped; the rest still
// run. Returns the number of failed listeners.
func (r *CallbackRegistry) Dispatch(category Category) int {
	r.mu.Lock()
	snapshot := r.listeners[category]
	logger, hook := r.logger, r.onFailure
	r.mu.Unlock()

	failures := 0
	for _, l := range snapshot {
		if err := invoke(l, category); err != nil {
			failures++
			logger.Warn("device callback failed", "category", string(category), "error", err)
			if hook != nil {
				hook(category)
			}
		}
	}
	return failures
}

func invoke(l Listener, category Category) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l.DeviceUpdated(category)
}

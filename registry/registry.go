package registry

import (
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
)

// Registry associates engine handles with values of type T.
// Lookups may run concurrently; Register and Unregister are exclusive with
// lookups, so a handle is never observed half-registered.
type Registry[T any] struct {
	entries   map[engine.Handle]weak.Pointer[T]
	observers map[int]Observer
	nextObs   int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		entries:   make(map[engine.Handle]weak.Pointer[T]),
		observers: make(map[int]Observer),
	}
}

// Register records the association h -> v.
func (r *Registry[T]) Register(h engine.Handle, v *T) error {
	if !h.Valid() {
		return errors.InvalidInput(errors.PhaseCreate, "handle 0 cannot be registered")
	}
	if v == nil {
		return errors.InvalidInput(errors.PhaseCreate, "nil value cannot be registered")
	}

	r.mu.Lock()
	if _, exists := r.entries[h]; exists {
		r.mu.Unlock()
		Logger().Error("duplicate handle", zap.Uint64("handle", uint64(h)))
		return errors.DuplicateHandle(h)
	}
	r.entries[h] = weak.Make(v)
	r.mu.Unlock()

	r.notify(Event{Type: EventRegistered, Handle: h})
	return nil
}

// Resolve returns the value registered for h.
func (r *Registry[T]) Resolve(h engine.Handle) (*T, error) {
	r.mu.RLock()
	wp, ok := r.entries[h]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.UnknownHandle(errors.PhaseCall, h)
	}
	v := wp.Value()
	if v == nil {
		return nil, errors.UnknownHandle(errors.PhaseCall, h)
	}
	return v, nil
}

// Unregister removes the association for h. Unknown handles are ignored.
func (r *Registry[T]) Unregister(h engine.Handle) {
	r.mu.Lock()
	_, ok := r.entries[h]
	delete(r.entries, h)
	r.mu.Unlock()

	if ok {
		r.notify(Event{Type: EventUnregistered, Handle: h})
	}
}

// Contains reports whether h is registered.
func (r *Registry[T]) Contains(h engine.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[h]
	return ok
}

// Len returns the number of registered handles.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Handles returns a snapshot of the registered handles.
func (r *Registry[T]) Handles() []engine.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]engine.Handle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	return handles
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (r *Registry[T]) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = o
	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		delete(r.observers, id)
	}
}

func (r *Registry[T]) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnRegistryEvent(e)
	}
}

// Package observe provides a small synchronous listener registry used by the
// stateful core components for change notification.
package observe

import (
	"sync"

	"github.com/google/uuid"
)

// Registry manages listeners that receive values of type T. Delivery is
// synchronous: Notify invokes every listener registered at call time, in
// registration order, before returning. Listeners must not re-enter the
// mutating API of the component that is notifying them.
type Registry[T any] struct {
	mu        sync.RWMutex
	order     []string
	listeners map[string]func(T)
}

// NewRegistry creates an empty listener registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		listeners: make(map[string]func(T)),
	}
}

// Add registers a listener and returns its subscription ID.
func (r *Registry[T]) Add(fn func(T)) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.listeners[id] = fn
	r.order = append(r.order, id)
	return id
}

// Remove unregisters a listener. Removing an unknown ID is a no-op.
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[id]; !ok {
		return
	}
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Notify delivers v to all current listeners in registration order.
func (r *Registry[T]) Notify(v T) {
	r.mu.RLock()
	fns := make([]func(T), 0, len(r.order))
	for _, id := range r.order {
		if fn, ok := r.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Count returns the number of registered listeners.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

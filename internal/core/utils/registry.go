package utils

import (
	"container/list"
	"sync"
)

// Registry is an ordered set of observers. Add returns a function that
// removes exactly the entry it added; removal is O(1) and safe to call
// while Snapshot results are being iterated.
type Registry[T any] struct {
	mu      sync.Mutex
	entries *list.List
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: list.New()}
}

// Add appends an observer and returns its removal function.
// Calling the removal function more than once is a no-op.
func (r *Registry[T]) Add(v T) (remove func()) {
	r.mu.Lock()
	elem := r.entries.PushBack(v)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.entries.Remove(elem)
			r.mu.Unlock()
		})
	}
}

// Snapshot returns the observers in registration order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, r.entries.Len())
	for e := r.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	return out
}

// Len returns the number of registered observers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}

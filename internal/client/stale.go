package client

import (
	"slices"
	"sync"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

// Invalidator marks cached query results as stale.
type Invalidator interface {
	Invalidate(keys ...domain.QueryKey)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(keys ...domain.QueryKey)

func (f InvalidatorFunc) Invalidate(keys ...domain.QueryKey) { f(keys...) }

// StaleTracker is an Invalidator that records which query keys need a
// refetch. Marking an already stale key again changes nothing.
type StaleTracker struct {
	mu    sync.Mutex
	stale map[domain.QueryKey]struct{}
}

// NewStaleTracker creates a tracker with nothing stale.
func NewStaleTracker() *StaleTracker {
	return &StaleTracker{stale: make(map[domain.QueryKey]struct{})}
}

func (t *StaleTracker) Invalidate(keys ...domain.QueryKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		t.stale[k] = struct{}{}
	}
}

// Stale returns the stale keys in sorted order.
func (t *StaleTracker) Stale() []domain.QueryKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.QueryKey, 0, len(t.stale))
	for k := range t.stale {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// IsStale reports whether key needs a refetch.
func (t *StaleTracker) IsStale(key domain.QueryKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.stale[key]
	return ok
}

// Refetched clears keys after their data was reloaded.
func (t *StaleTracker) Refetched(keys ...domain.QueryKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		delete(t.stale, k)
	}
}

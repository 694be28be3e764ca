package memory

import (
	"context"
	"sync"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// CounterStore keeps the connected-user count in process memory.
type CounterStore struct {
	mu    sync.Mutex
	total int64
}

var _ ports.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a store starting at zero.
func NewCounterStore() *CounterStore {
	return &CounterStore{}
}

func (s *CounterStore) Increment(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	return s.total, nil
}

func (s *CounterStore) Decrement(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total > 0 {
		s.total--
	}
	return s.total, nil
}

func (s *CounterStore) Total(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

func (s *CounterStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	return nil
}

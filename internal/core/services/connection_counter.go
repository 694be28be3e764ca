package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/utils"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

// ConnectionCounter tracks connected users. Each connection id is counted
// at most once and only a counted id can be decremented, so the total
// equals connects minus disconnects and never goes negative.
//
// Listeners run outside the store lock. Totals are stamped with a sequence
// number under the lock and delivered in that order; a total superseded
// while a listener is busy is skipped in favor of the newest.
type ConnectionCounter struct {
	store     ports.CounterStore
	mu        sync.Mutex
	active    map[string]struct{}
	seq       uint64
	listeners *utils.Registry[func(total int64)]
	metrics   *metrics.Metrics
	logger    *slog.Logger

	notifyMu     sync.Mutex
	notifying    bool
	pendingSeq   uint64
	pendingTotal int64
	deliveredSeq uint64
}

// NewConnectionCounter creates a counter backed by store.
func NewConnectionCounter(store ports.CounterStore, m *metrics.Metrics, logger *slog.Logger) *ConnectionCounter {
	return &ConnectionCounter{
		store:     store,
		active:    make(map[string]struct{}),
		listeners: utils.NewRegistry[func(total int64)](),
		metrics:   m,
		logger:    logger.With("component", "connection_counter"),
	}
}

// Connect counts connID once and returns the new total.
func (c *ConnectionCounter) Connect(ctx context.Context, connID string) (int64, error) {
	c.mu.Lock()
	if _, ok := c.active[connID]; ok {
		c.mu.Unlock()
		return c.store.Total(ctx)
	}

	total, err := c.store.Increment(ctx)
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("increment connection count: %w", err)
	}
	c.active[connID] = struct{}{}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.publish(seq, total)
	return total, nil
}

// Disconnect releases connID if it was counted and returns the new total.
func (c *ConnectionCounter) Disconnect(ctx context.Context, connID string) (int64, error) {
	c.mu.Lock()
	if _, ok := c.active[connID]; !ok {
		c.mu.Unlock()
		return c.store.Total(ctx)
	}

	total, err := c.store.Decrement(ctx)
	// Forget the id even on failure so it is never decremented twice.
	delete(c.active, connID)
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("decrement connection count: %w", err)
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.publish(seq, total)
	return total, nil
}

// Total returns the current global count.
func (c *ConnectionCounter) Total(ctx context.Context) (int64, error) {
	return c.store.Total(ctx)
}

// Local returns the number of connections counted by this process.
func (c *ConnectionCounter) Local() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// OnChange registers fn to be called with every new total.
func (c *ConnectionCounter) OnChange(fn func(total int64)) (remove func()) {
	return c.listeners.Add(fn)
}

// Reset clears this process's share, used once at startup.
func (c *ConnectionCounter) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = make(map[string]struct{})
	return c.store.Reset(ctx)
}

// publish records total as the newest and delivers it unless another
// caller is already delivering, in which case that caller picks it up.
func (c *ConnectionCounter) publish(seq uint64, total int64) {
	c.notifyMu.Lock()
	if seq > c.pendingSeq {
		c.pendingSeq, c.pendingTotal = seq, total
	}
	if c.notifying {
		c.notifyMu.Unlock()
		return
	}
	c.notifying = true
	for c.deliveredSeq < c.pendingSeq {
		current := c.pendingTotal
		c.deliveredSeq = c.pendingSeq
		c.notifyMu.Unlock()
		c.changed(current)
		c.notifyMu.Lock()
	}
	c.notifying = false
	c.notifyMu.Unlock()
}

func (c *ConnectionCounter) changed(total int64) {
	c.metrics.SetConnectedUsers(total)
	for _, fn := range c.listeners.Snapshot() {
		c.notify(fn, total)
	}
}

func (c *ConnectionCounter) notify(fn func(total int64), total int64) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(c.logger, r)
		}
	}()
	fn(total)
}

// ConnectionCountReporter returns a listener that publishes every new total
// as a CONNECTION_COUNT_UPDATE event.
func ConnectionCountReporter(pub ports.Publisher, logger *slog.Logger) func(total int64) {
	return func(total int64) {
		env := domain.NewEnvelope(domain.EventConnectionCountUpdate,
			domain.WithMessage(fmt.Sprintf("%d users online", total)),
		)
		if _, err := pub.Emit(context.Background(), env, ports.MutationContext{}); err != nil {
			logger.Warn("failed to report connection count", "total", total, "error", err)
		}
	}
}

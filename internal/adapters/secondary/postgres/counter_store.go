package postgres

import (
	"context"
	"fmt"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// CounterStore keeps one connection-count row per server instance; the
// global total is the sum of all rows. Updates are single atomic statements.
type CounterStore struct {
	db         DBTX
	instanceID string
}

var _ ports.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a store for the given instance.
func NewCounterStore(db DBTX, instanceID string) *CounterStore {
	return &CounterStore{db: db, instanceID: instanceID}
}

const incrementConnections = `
WITH mine AS (
    INSERT INTO connection_counts (instance_id, connections, updated_at)
    VALUES ($1, 1, now())
    ON CONFLICT (instance_id) DO UPDATE
    SET connections = connection_counts.connections + 1,
        updated_at  = now()
    RETURNING connections
)
SELECT mine.connections + COALESCE(
    (SELECT SUM(connections) FROM connection_counts WHERE instance_id <> $1), 0
)::BIGINT
FROM mine`

// Increment implements ports.CounterStore.
func (s *CounterStore) Increment(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, incrementConnections, s.instanceID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to increment connection count: %w", err)
	}
	return total, nil
}

const decrementConnections = `
WITH mine AS (
    UPDATE connection_counts
    SET connections = GREATEST(connections - 1, 0),
        updated_at  = now()
    WHERE instance_id = $1
    RETURNING connections
)
SELECT COALESCE((SELECT connections FROM mine), 0) + COALESCE(
    (SELECT SUM(connections) FROM connection_counts WHERE instance_id <> $1), 0
)::BIGINT`

// Decrement implements ports.CounterStore.
func (s *CounterStore) Decrement(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, decrementConnections, s.instanceID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to decrement connection count: %w", err)
	}
	return total, nil
}

const totalConnections = `SELECT COALESCE(SUM(connections), 0)::BIGINT FROM connection_counts`

// Total implements ports.CounterStore.
func (s *CounterStore) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, totalConnections).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read connection count: %w", err)
	}
	return total, nil
}

// Reset removes this instance's row.
func (s *CounterStore) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM connection_counts WHERE instance_id = $1`, s.instanceID); err != nil {
		return fmt.Errorf("failed to reset connection count: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterStore_TotalsAcrossInstances(t *testing.T) {
	pool := requirePool(t)
	truncateCounts(t)
	ctx := context.Background()

	a := NewCounterStore(pool, "instance-a")
	b := NewCounterStore(pool, "instance-b")

	total, err := a.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = b.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	total, err = a.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = b.Decrement(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	total, err = a.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestCounterStore_NeverNegative(t *testing.T) {
	pool := requirePool(t)
	truncateCounts(t)
	ctx := context.Background()

	store := NewCounterStore(pool, "instance-a")

	total, err := store.Decrement(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = store.Increment(ctx)
	require.NoError(t, err)
	for range 3 {
		total, err = store.Decrement(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), total)
}

func TestCounterStore_ResetRemovesOnlyOwnRow(t *testing.T) {
	pool := requirePool(t)
	truncateCounts(t)
	ctx := context.Background()

	a := NewCounterStore(pool, "instance-a")
	b := NewCounterStore(pool, "instance-b")

	_, err := a.Increment(ctx)
	require.NoError(t, err)
	_, err = b.Increment(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Reset(ctx))

	total, err := b.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCounterStore_ConcurrentPairsBalance(t *testing.T) {
	pool := requirePool(t)
	truncateCounts(t)
	ctx := context.Background()

	store := NewCounterStore(pool, "instance-a")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx)
			assert.NoError(t, err)
			_, err = store.Decrement(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := store.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

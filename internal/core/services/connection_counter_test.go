package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/secondary/memory"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/mocks"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

func TestConnectionCounter_PairsBalance(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	counter := services.NewConnectionCounter(memory.NewCounterStore(), m, discardLogger())

	var totals []int64
	counter.OnChange(func(total int64) { totals = append(totals, total) })

	total, err := counter.Connect(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = counter.Connect(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	total, err = counter.Disconnect(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	assert.Equal(t, []int64{1, 2, 1}, totals)
	assert.Equal(t, 1, counter.Local())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectedUsers))
}

func TestConnectionCounter_IgnoresUnpairedCalls(t *testing.T) {
	ctx := context.Background()
	counter := services.NewConnectionCounter(memory.NewCounterStore(), nil, discardLogger())

	changes := 0
	counter.OnChange(func(int64) { changes++ })

	total, err := counter.Disconnect(ctx, "never-connected")
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = counter.Connect(ctx, "c1")
	require.NoError(t, err)
	total, err = counter.Connect(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "a connection is counted once")

	_, err = counter.Disconnect(ctx, "c1")
	require.NoError(t, err)
	total, err = counter.Disconnect(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, total, "never negative")

	assert.Equal(t, 2, changes)
}

func TestConnectionCounter_ConcurrentConnections(t *testing.T) {
	ctx := context.Background()
	counter := services.NewConnectionCounter(memory.NewCounterStore(), nil, discardLogger())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_, err := counter.Connect(ctx, id)
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err = counter.Disconnect(ctx, id)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	total, err := counter.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, 25, counter.Local())
}

func TestConnectionCounter_SlowListenerDoesNotBlockConnects(t *testing.T) {
	ctx := context.Background()
	counter := services.NewConnectionCounter(memory.NewCounterStore(), nil, discardLogger())

	gate := make(chan struct{})
	entered := make(chan struct{})
	var mu sync.Mutex
	var totals []int64
	counter.OnChange(func(total int64) {
		mu.Lock()
		totals = append(totals, total)
		mu.Unlock()
		if total == 1 {
			close(entered)
			<-gate
		}
	})

	first := make(chan error, 1)
	go func() {
		_, err := counter.Connect(ctx, "c1")
		first <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}

	second := make(chan int64, 1)
	go func() {
		total, err := counter.Connect(ctx, "c2")
		assert.NoError(t, err)
		second <- total
	}()

	select {
	case total := <-second:
		assert.Equal(t, int64(2), total)
	case <-time.After(2 * time.Second):
		t.Fatal("connect blocked behind a listener")
	}

	close(gate)
	require.NoError(t, <-first)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2}, totals, "the newer total follows once the listener returns")
}

func TestConnectionCounter_PanickingListener(t *testing.T) {
	ctx := context.Background()
	counter := services.NewConnectionCounter(memory.NewCounterStore(), nil, discardLogger())

	var totals []int64
	counter.OnChange(func(int64) { panic("listener failure") })
	counter.OnChange(func(total int64) { totals = append(totals, total) })

	for _, id := range []string{"c1", "c2"} {
		_, err := counter.Connect(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2}, totals)
}

func TestConnectionCounter_DecrementFailureForgetsConnection(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockCounterStore()
	counter := services.NewConnectionCounter(store, nil, discardLogger())

	store.On("Increment", ctx).Return(int64(1), nil).Once()
	store.On("Decrement", ctx).Return(int64(0), errors.New("db down")).Once()
	store.On("Total", ctx).Return(int64(1), nil)

	_, err := counter.Connect(ctx, "c1")
	require.NoError(t, err)

	_, err = counter.Disconnect(ctx, "c1")
	assert.Error(t, err)

	_, err = counter.Disconnect(ctx, "c1")
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "Decrement", 1)
}

func TestConnectionCounter_Reset(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCounterStore()
	counter := services.NewConnectionCounter(store, nil, discardLogger())

	_, err := counter.Connect(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, counter.Reset(ctx))

	assert.Zero(t, counter.Local())
	total, err := counter.Disconnect(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConnectionCountReporter(t *testing.T) {
	pub := mocks.NewMockPublisher()
	report := services.ConnectionCountReporter(pub, discardLogger())

	pub.On("Emit", mock.Anything, mock.MatchedBy(func(env domain.Envelope) bool {
		return env.Type() == domain.EventConnectionCountUpdate && env.Message() == "3 users online"
	}), ports.MutationContext{}).Return(ports.EmitResult{Published: 1}, nil).Once()

	report(3)
	pub.AssertExpectations(t)
}

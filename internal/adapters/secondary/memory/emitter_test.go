package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

func newTestEmitter(t *testing.T) *Emitter {
	t.Helper()
	e := NewEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, e.Connect(context.Background()))
	return e
}

func TestEmitter_DeliversInPublishOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEmitter(t)

	var got []domain.EventType
	require.NoError(t, e.Subscribe(ctx, domain.PublicChannel(), func(_ domain.Channel, env domain.Envelope) {
		got = append(got, env.Type())
	}))

	for _, et := range []domain.EventType{domain.EventMenuAdd, domain.EventMenuUpdate, domain.EventMenuDelete} {
		require.NoError(t, e.Publish(ctx, domain.PublicChannel(), domain.NewEnvelope(et)))
	}
	assert.Equal(t, []domain.EventType{domain.EventMenuAdd, domain.EventMenuUpdate, domain.EventMenuDelete}, got)
}

func TestEmitter_OnlyDeliversToSubscribedChannel(t *testing.T) {
	ctx := context.Background()
	e := newTestEmitter(t)

	calls := 0
	require.NoError(t, e.Subscribe(ctx, domain.StaffChannel(), func(domain.Channel, domain.Envelope) { calls++ }))

	require.NoError(t, e.Publish(ctx, domain.AdminChannel(), domain.NewEnvelope(domain.EventBonusAdd)))
	assert.Zero(t, calls)

	require.NoError(t, e.Unsubscribe(ctx, domain.StaffChannel()))
	require.NoError(t, e.Publish(ctx, domain.StaffChannel(), domain.NewEnvelope(domain.EventPOSUpdate)))
	assert.Zero(t, calls)
}

func TestEmitter_RecoversHandlerPanic(t *testing.T) {
	ctx := context.Background()
	e := newTestEmitter(t)

	require.NoError(t, e.Subscribe(ctx, domain.PublicChannel(), func(domain.Channel, domain.Envelope) {
		panic("boom")
	}))
	assert.NoError(t, e.Publish(ctx, domain.PublicChannel(), domain.NewEnvelope(domain.EventMenuAdd)))
}

func TestEmitter_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.ErrorIs(t, e.Publish(ctx, domain.PublicChannel(), domain.NewEnvelope(domain.EventMenuAdd)), apperrors.ErrTransportClosed)
	assert.ErrorIs(t, e.Subscribe(ctx, domain.PublicChannel(), func(domain.Channel, domain.Envelope) {}), apperrors.ErrTransportClosed)
	assert.ErrorIs(t, e.Ping(ctx), apperrors.ErrTransportClosed)
}

func TestEmitter_Hooks(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	opens := 0
	var closes []error
	e.OnOpen(func() { opens++ })
	remove := e.OnClose(func(err error) { closes = append(closes, err) })

	require.NoError(t, e.Connect(ctx))
	require.NoError(t, e.Connect(ctx))
	assert.Equal(t, 1, opens)

	require.NoError(t, e.Subscribe(ctx, domain.PublicChannel(), func(domain.Channel, domain.Envelope) {}))

	lost := errors.New("connection reset")
	e.Fail(lost)
	require.Len(t, closes, 1)
	assert.ErrorIs(t, closes[0], lost)

	// Subscriptions do not survive a close.
	require.NoError(t, e.Connect(ctx))
	assert.NoError(t, e.Subscribe(ctx, domain.PublicChannel(), func(domain.Channel, domain.Envelope) {}))

	remove()
	require.NoError(t, e.Close())
	assert.Len(t, closes, 1)
}

func TestEmitter_DuplicateSubscription(t *testing.T) {
	ctx := context.Background()
	e := newTestEmitter(t)

	noop := func(domain.Channel, domain.Envelope) {}
	require.NoError(t, e.Subscribe(ctx, domain.PublicChannel(), noop))
	assert.ErrorIs(t, e.Subscribe(ctx, domain.PublicChannel(), noop), apperrors.ErrAlreadySubscribed)
}

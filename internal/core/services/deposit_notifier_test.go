package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/mocks"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
)

func TestDepositNotifier_Settle(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies depositor and staff", func(t *testing.T) {
		pub := mocks.NewMockPublisher()
		notifier := services.NewDepositNotifier(pub, discardLogger())
		userCh := mustUserChannel(t, "u1")

		pub.On("Emit", ctx, mock.MatchedBy(func(env domain.Envelope) bool {
			return env.Type() == domain.EventDepositRecharge && env.Link() == "/deposit/d1"
		}), ports.MutationContext{OwnerID: "u1"}).
			Return(ports.EmitResult{Channels: []domain.Channel{userCh}, Published: 1}, nil).Once()
		pub.On("Emit", ctx, mock.MatchedBy(func(env domain.Envelope) bool {
			return env.Type() == domain.EventDepositStatusUpdate && env.SkipNotify()
		}), ports.MutationContext{}).
			Return(ports.EmitResult{Channels: []domain.Channel{domain.StaffChannel()}, Published: 1}, nil).Once()

		res, err := notifier.Settle(ctx, domain.DepositSettlement{UserID: "u1", DepositID: "d1", Status: domain.DepositRecharged})
		require.NoError(t, err)
		assert.Equal(t, []domain.Channel{userCh, domain.StaffChannel()}, res.Channels)
		assert.Equal(t, 2, res.Published)
		pub.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		pub := mocks.NewMockPublisher()
		notifier := services.NewDepositNotifier(pub, discardLogger())

		_, err := notifier.Settle(ctx, domain.DepositSettlement{UserID: "u1", DepositID: "d1", Status: "pending"})
		assert.ErrorIs(t, err, apperrors.ErrBadRequest)
		pub.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid user", func(t *testing.T) {
		pub := mocks.NewMockPublisher()
		notifier := services.NewDepositNotifier(pub, discardLogger())

		_, err := notifier.Settle(ctx, domain.DepositSettlement{UserID: "", DepositID: "d1", Status: domain.DepositFailed})
		assert.ErrorIs(t, err, apperrors.ErrInvalidUserID)
	})
}

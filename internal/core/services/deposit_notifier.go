package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// DepositNotifier turns settled payments into realtime events: the
// depositor gets the outcome, staff get a silent status refresh.
type DepositNotifier struct {
	publisher ports.Publisher
	logger    *slog.Logger
}

// NewDepositNotifier creates a new DepositNotifier.
func NewDepositNotifier(publisher ports.Publisher, logger *slog.Logger) *DepositNotifier {
	return &DepositNotifier{
		publisher: publisher,
		logger:    logger.With("component", "deposit_notifier"),
	}
}

// Settle emits the events for one settlement.
func (n *DepositNotifier) Settle(ctx context.Context, s domain.DepositSettlement) (ports.EmitResult, error) {
	eventType, ok := s.Status.EventType()
	if !ok {
		return ports.EmitResult{}, apperrors.NewBadRequestError(
			fmt.Errorf("%w: deposit status %q", apperrors.ErrBadRequest, s.Status),
			"Unknown deposit status",
		)
	}
	if err := domain.ValidateUserID(s.UserID); err != nil {
		return ports.EmitResult{}, err
	}

	userEvent := domain.NewEnvelope(eventType,
		domain.WithMessage(s.Message()),
		domain.WithLink(s.Link()),
	)
	res, err := n.publisher.Emit(ctx, userEvent, ports.MutationContext{OwnerID: s.UserID})
	if err != nil {
		return res, err
	}

	staffEvent := domain.NewEnvelope(domain.EventDepositStatusUpdate,
		domain.WithMessage(fmt.Sprintf("Deposit %s: %s", s.DepositID, s.Status)),
		domain.WithLink(s.Link()),
	)
	staffRes, err := n.publisher.Emit(ctx, staffEvent, ports.MutationContext{})
	if err != nil {
		return res, err
	}

	n.logger.InfoContext(ctx, "deposit settlement published",
		"deposit_id", s.DepositID,
		"user_id", s.UserID,
		"status", string(s.Status),
	)

	return ports.EmitResult{
		Channels:  append(res.Channels, staffRes.Channels...),
		Published: res.Published + staffRes.Published,
	}, nil
}

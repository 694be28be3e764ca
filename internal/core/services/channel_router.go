package services

import (
	"fmt"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// ChannelRouter resolves event audiences and authorizes subscriptions.
// It holds no mutable state and is safe for concurrent use.
type ChannelRouter struct{}

var _ ports.ChannelRouter = (*ChannelRouter)(nil)

// NewChannelRouter creates a new channel router
func NewChannelRouter() *ChannelRouter {
	return &ChannelRouter{}
}

// ResolveChannelsForEvent returns the channels that should receive env.
// The result is never empty on success and is the same for the same input.
func (r *ChannelRouter) ResolveChannelsForEvent(env domain.Envelope, mc ports.MutationContext) ([]domain.Channel, error) {
	def, ok := domain.DefinitionOf(env.Type())
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEventType, env.Type())
	}

	switch def.Audience {
	case domain.AudienceUser:
		if mc.OwnerID == "" {
			return nil, fmt.Errorf("%s: %w", def.Type, apperrors.ErrMissingOwner)
		}
		ch, err := domain.UserChannel(mc.OwnerID)
		if err != nil {
			return nil, err
		}
		return []domain.Channel{ch}, nil

	case domain.AudienceStaff:
		return []domain.Channel{domain.StaffChannel()}, nil

	case domain.AudiencePublic:
		return []domain.Channel{domain.PublicChannel()}, nil

	case domain.AudienceAdmin:
		channels := []domain.Channel{domain.AdminChannel()}
		if def.AlsoOwner && mc.OwnerID != "" {
			ch, err := domain.UserChannel(mc.OwnerID)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		}
		return channels, nil
	}

	return nil, fmt.Errorf("%s: unroutable audience %q", def.Type, def.Audience)
}

// AuthorizeSubscription reports whether principal may subscribe to channel.
func (r *ChannelRouter) AuthorizeSubscription(principal domain.Principal, channel domain.Channel) bool {
	if !principal.Role.IsValid() || channel.IsZero() {
		return false
	}

	if channel.Kind() == domain.ChannelUser {
		return principal.ID != "" && principal.ID == channel.UserID()
	}

	return principal.Role.Dominates(channel.MinRole())
}

// Authorize parses a wire channel name and checks the principal may subscribe to it.
func (r *ChannelRouter) Authorize(principal domain.Principal, channelName string) (domain.Channel, error) {
	ch, err := domain.ParseChannel(channelName)
	if err != nil {
		return domain.Channel{}, err
	}

	if !r.AuthorizeSubscription(principal, ch) {
		return domain.Channel{}, fmt.Errorf("%w: %s may not subscribe to %s",
			apperrors.ErrSubscriptionDenied, principal.Role, ch.Name())
	}
	return ch, nil
}

// SubscribableChannels lists the channels principal may subscribe to.
func (r *ChannelRouter) SubscribableChannels(principal domain.Principal) []domain.Channel {
	candidates := []domain.Channel{
		domain.PublicChannel(),
		domain.StaffChannel(),
		domain.AdminChannel(),
	}
	if ch, err := domain.UserChannel(principal.ID); err == nil {
		candidates = append(candidates, ch)
	}

	out := make([]domain.Channel, 0, len(candidates))
	for _, ch := range candidates {
		if r.AuthorizeSubscription(principal, ch) {
			out = append(out, ch)
		}
	}
	return out
}

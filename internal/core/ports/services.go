package ports

import (
	"context"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

// MutationContext carries the ids of entities affected by a committed
// mutation, as far as channel resolution and push delivery need them.
type MutationContext struct {
	// OwnerID is the user the event is about (the order's owner, the depositor, ...).
	OwnerID string
	// UserIDs are additional users that should receive the push side channel.
	UserIDs []string
}

// Recipients returns the deduplicated push recipients, owner first.
func (m MutationContext) Recipients() []string {
	seen := make(map[string]struct{}, len(m.UserIDs)+1)
	out := make([]string, 0, len(m.UserIDs)+1)
	for _, id := range append([]string{m.OwnerID}, m.UserIDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EmitResult reports the outcome of an Emit call.
type EmitResult struct {
	Channels  []domain.Channel
	Published int
}

// ChannelRouter maps events to audiences and authorizes subscriptions.
type ChannelRouter interface {
	ResolveChannelsForEvent(env domain.Envelope, mc MutationContext) ([]domain.Channel, error)
	AuthorizeSubscription(principal domain.Principal, channel domain.Channel) bool
	Authorize(principal domain.Principal, channelName string) (domain.Channel, error)
	SubscribableChannels(principal domain.Principal) []domain.Channel
}

// Publisher is the entry point used by domain mutations.
type Publisher interface {
	// Publish writes one envelope to one channel and reports whether the
	// transport accepted it.
	Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) bool
	// Emit resolves the channels of env, publishes to each of them and
	// triggers the push side channel.
	Emit(ctx context.Context, env domain.Envelope, mc MutationContext) (EmitResult, error)
}

// PushNotifier is the out-of-band, best-effort push provider.
type PushNotifier interface {
	PushToUsers(ctx context.Context, userIDs []string, title, body, link string) error
}

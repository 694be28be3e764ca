package ports

import (
	"context"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

// EventHandler receives envelopes delivered on a subscribed channel.
// Handlers must not block; they run on the transport's delivery loop.
type EventHandler func(channel domain.Channel, env domain.Envelope)

// Transport is the pluggable delivery mechanism below the Publisher.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, channel domain.Channel, handler EventHandler) error
	Unsubscribe(ctx context.Context, channel domain.Channel) error
	Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) error

	// OnOpen registers a hook fired every time the transport (re)opens.
	OnOpen(fn func()) (remove func())
	// OnClose registers a hook fired every time the transport closes.
	// err is nil for an orderly Close.
	OnClose(fn func(err error)) (remove func())

	Close() error
}

// CounterStore persists connected-user counts.
type CounterStore interface {
	// Increment adds one connection and returns the new total.
	Increment(ctx context.Context) (int64, error)
	// Decrement removes one connection without going below zero and returns the new total.
	Decrement(ctx context.Context) (int64, error)
	// Total returns the current total.
	Total(ctx context.Context) (int64, error)
	// Reset clears this process's share of the count.
	Reset(ctx context.Context) error
}

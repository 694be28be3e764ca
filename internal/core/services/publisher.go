package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

const defaultPushTimeout = 10 * time.Second

// Publisher writes envelopes to the transport and fires the push side channel.
// Transport failures are logged and dropped; push failures never reach the caller.
type Publisher struct {
	router      ports.ChannelRouter
	transport   ports.Transport
	pusher      ports.PushNotifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	pushTimeout time.Duration
	wg          sync.WaitGroup
}

var _ ports.Publisher = (*Publisher)(nil)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPushTimeout bounds each push side channel call.
func WithPushTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.pushTimeout = d }
}

// WithMetrics records publish and push outcomes.
func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher creates a new publisher. pusher may be nil to disable push.
func NewPublisher(
	router ports.ChannelRouter,
	transport ports.Transport,
	pusher ports.PushNotifier,
	logger *slog.Logger,
	opts ...PublisherOption,
) *Publisher {
	p := &Publisher{
		router:      router,
		transport:   transport,
		pusher:      pusher,
		logger:      logger.With("component", "publisher"),
		pushTimeout: defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes env to a single channel. The result reflects the transport
// write only, not delivery to any subscriber.
func (p *Publisher) Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) bool {
	err := p.transport.Publish(ctx, channel, env)
	if err != nil {
		logging.LoggerFromContext(ctx, p.logger).Warn("publish failed, dropping event",
			"event_type", env.Type(),
			"channel", channel.Name(),
			"error", err,
		)
		p.metrics.EventPublished(string(env.Type()), string(channel.Kind()), metrics.ResultError)
		return false
	}

	p.metrics.EventPublished(string(env.Type()), string(channel.Kind()), metrics.ResultSuccess)
	return true
}

// Emit resolves the channels of env and publishes to each one in order.
// Only a resolution failure is returned as an error.
func (p *Publisher) Emit(ctx context.Context, env domain.Envelope, mc ports.MutationContext) (ports.EmitResult, error) {
	channels, err := p.router.ResolveChannelsForEvent(env, mc)
	if err != nil {
		return ports.EmitResult{}, err
	}

	result := ports.EmitResult{Channels: channels}
	for _, ch := range channels {
		if p.Publish(ctx, ch, env) {
			result.Published++
		}
	}

	if !env.SkipNotify() {
		p.push(env, mc.Recipients())
	}

	return result, nil
}

// push calls the push provider in the background.
func (p *Publisher) push(env domain.Envelope, recipients []string) {
	if p.pusher == nil || len(recipients) == 0 {
		return
	}

	def := env.Definition()
	body := env.Message()
	if body == "" {
		body = def.Title
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.metrics.PushSent(metrics.ResultPanic)
				logging.LogPanic(p.logger, r)
			}
		}()

		// The mutation's request context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), p.pushTimeout)
		defer cancel()

		if err := p.pusher.PushToUsers(ctx, recipients, def.Title, body, env.Link()); err != nil {
			p.metrics.PushSent(metrics.ResultError)
			p.logger.Warn("push notification failed",
				"event_type", env.Type(),
				"recipients", len(recipients),
				"error", err,
			)
			return
		}
		p.metrics.PushSent(metrics.ResultSuccess)
	}()
}

// Shutdown waits for in-flight push notifications to finish.
func (p *Publisher) Shutdown() {
	p.wg.Wait()
}

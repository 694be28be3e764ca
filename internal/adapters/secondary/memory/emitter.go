package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/utils"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// Emitter is an in-process transport for single-instance deployments.
// Publishes are serialized, so every channel is delivered in publish order.
type Emitter struct {
	mu       sync.RWMutex
	open     bool
	handlers map[string]ports.EventHandler

	// publishMu serializes deliveries across publishers.
	publishMu sync.Mutex

	onOpen  *utils.Registry[func()]
	onClose *utils.Registry[func(error)]
	logger  *slog.Logger
}

var _ ports.Transport = (*Emitter)(nil)

// NewEmitter creates a closed emitter; call Connect before use.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[string]ports.EventHandler),
		onOpen:   utils.NewRegistry[func()](),
		onClose:  utils.NewRegistry[func(error)](),
		logger:   logger.With("component", "memory_transport"),
	}
}

// Connect opens the emitter and fires the open hooks.
func (e *Emitter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.open {
		e.mu.Unlock()
		return nil
	}
	e.open = true
	e.mu.Unlock()

	e.logger.Info("transport opened")
	for _, fn := range e.onOpen.Snapshot() {
		fn()
	}
	return nil
}

// Subscribe registers the single handler for channel.
func (e *Emitter) Subscribe(_ context.Context, channel domain.Channel, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return apperrors.ErrTransportClosed
	}
	if _, ok := e.handlers[channel.Name()]; ok {
		return apperrors.ErrAlreadySubscribed
	}
	e.handlers[channel.Name()] = handler
	return nil
}

// Unsubscribe removes the handler for channel, if any.
func (e *Emitter) Unsubscribe(_ context.Context, channel domain.Channel) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handlers, channel.Name())
	return nil
}

// Publish delivers env synchronously to the channel's handler.
// Publishing to a channel nobody subscribed to succeeds.
func (e *Emitter) Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	e.mu.RLock()
	open := e.open
	handler := e.handlers[channel.Name()]
	e.mu.RUnlock()

	if !open {
		return apperrors.ErrTransportClosed
	}
	if handler != nil {
		e.dispatch(handler, channel, env)
	}
	return nil
}

func (e *Emitter) dispatch(handler ports.EventHandler, channel domain.Channel, env domain.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(e.logger, r)
		}
	}()
	handler(channel, env)
}

// Ping reports ErrTransportClosed unless the emitter is open.
func (e *Emitter) Ping(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return apperrors.ErrTransportClosed
	}
	return nil
}

// OnOpen registers an open hook.
func (e *Emitter) OnOpen(fn func()) func() {
	return e.onOpen.Add(fn)
}

// OnClose registers a close hook.
func (e *Emitter) OnClose(fn func(error)) func() {
	return e.onClose.Add(fn)
}

// Close shuts the emitter down and fires the close hooks with a nil error.
func (e *Emitter) Close() error {
	e.shutdown(nil)
	return nil
}

// Fail closes the emitter as if the underlying connection dropped.
func (e *Emitter) Fail(err error) {
	e.shutdown(err)
}

func (e *Emitter) shutdown(err error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return
	}
	e.open = false
	e.handlers = make(map[string]ports.EventHandler)
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("transport closed", "error", err)
	} else {
		e.logger.Info("transport closed")
	}
	for _, fn := range e.onClose.Snapshot() {
		fn(err)
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/utils"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// maxNotifyPayload is the Postgres NOTIFY payload limit (8000 bytes, exclusive).
const maxNotifyPayload = 7999

// DefaultNotifyChannel is the Postgres channel all instances LISTEN on.
const DefaultNotifyChannel = "realtime_events"

// notification is the NOTIFY payload.
type notification struct {
	Channel domain.Channel  `json:"channel"`
	Event   domain.Envelope `json:"event"`
}

// NotifyTransportConfig configures a NotifyTransport.
type NotifyTransportConfig struct {
	// Channel is the Postgres LISTEN/NOTIFY channel name.
	Channel string
	// MaxReconnectInterval caps the listener reconnect backoff.
	MaxReconnectInterval time.Duration
}

// NotifyTransport fans events out across instances with LISTEN/NOTIFY.
// Every instance holds one dedicated listening connection and dispatches
// notifications to its local handlers in arrival order.
type NotifyTransport struct {
	pool   *pgxpool.Pool
	cfg    NotifyTransportConfig
	logger *slog.Logger

	mu       sync.RWMutex
	open     bool
	handlers map[string]ports.EventHandler
	cancel   context.CancelFunc
	done     chan struct{}

	onOpen  *utils.Registry[func()]
	onClose *utils.Registry[func(error)]
}

var _ ports.Transport = (*NotifyTransport)(nil)

// NewNotifyTransport creates a transport on pool.
func NewNotifyTransport(pool *pgxpool.Pool, cfg NotifyTransportConfig, logger *slog.Logger) *NotifyTransport {
	if cfg.Channel == "" {
		cfg.Channel = DefaultNotifyChannel
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}

	return &NotifyTransport{
		pool:     pool,
		cfg:      cfg,
		logger:   logger.With("component", "pg_notify_transport", "pg_channel", cfg.Channel),
		handlers: make(map[string]ports.EventHandler),
		onOpen:   utils.NewRegistry[func()](),
		onClose:  utils.NewRegistry[func(error)](),
	}
}

// Connect starts listening. The first LISTEN happens synchronously so a
// misconfigured database fails startup; later drops reconnect with backoff.
func (t *NotifyTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.listen(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.open = true
	t.mu.Unlock()

	t.fireOpen()
	go t.run(loopCtx, conn, done)
	return nil
}

// listen acquires a dedicated connection and issues LISTEN on it.
func (t *NotifyTransport) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t.cfg.Channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", t.cfg.Channel, err)
	}
	return conn, nil
}

func (t *NotifyTransport) run(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)

	for {
		err := t.receive(ctx, conn)
		discard(conn)
		if ctx.Err() != nil {
			return
		}

		t.setOpen(false)
		t.logger.Warn("listen connection lost", "error", err)
		t.fireClose(err)

		conn, err = t.reconnect(ctx)
		if err != nil {
			return
		}
		t.setOpen(true)
		t.logger.Info("listen connection restored")
		t.fireOpen()
	}
}

// receive dispatches notifications until the connection fails or ctx ends.
func (t *NotifyTransport) receive(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		t.dispatch([]byte(n.Payload))
	}
}

func (t *NotifyTransport) reconnect(ctx context.Context) (*pgxpool.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = t.cfg.MaxReconnectInterval
	b.MaxElapsedTime = 0

	var conn *pgxpool.Conn
	err := backoff.RetryNotify(func() error {
		c, err := t.listen(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		t.logger.Warn("listen reconnect failed", "error", err, "retry_in", wait)
	})
	return conn, err
}

func (t *NotifyTransport) dispatch(payload []byte) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		if errors.Is(err, apperrors.ErrUnknownEventType) {
			t.logger.Info("ignoring notification with unknown event type", "error", err)
		} else {
			t.logger.Warn("failed to decode notification", "error", err)
		}
		return
	}

	t.mu.RLock()
	handler := t.handlers[n.Channel.Name()]
	t.mu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(t.logger, r)
		}
	}()
	handler(n.Channel, n.Event)
}

// Subscribe registers the local handler for channel.
func (t *NotifyTransport) Subscribe(_ context.Context, channel domain.Channel, handler ports.EventHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return apperrors.ErrTransportClosed
	}
	if _, ok := t.handlers[channel.Name()]; ok {
		return apperrors.ErrAlreadySubscribed
	}
	t.handlers[channel.Name()] = handler
	return nil
}

// Unsubscribe removes the local handler for channel.
func (t *NotifyTransport) Unsubscribe(_ context.Context, channel domain.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handlers, channel.Name())
	return nil
}

// Publish sends env to every instance with pg_notify.
func (t *NotifyTransport) Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) error {
	payload, err := json.Marshal(notification{Channel: channel, Event: env})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("%w: %d bytes", apperrors.ErrPayloadTooLarge, len(payload))
	}

	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", t.cfg.Channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Ping fails while the listener is down or the database is unreachable.
func (t *NotifyTransport) Ping(ctx context.Context) error {
	t.mu.RLock()
	open := t.open
	t.mu.RUnlock()
	if !open {
		return apperrors.ErrTransportClosed
	}
	return t.pool.Ping(ctx)
}

// OnOpen registers an open hook.
func (t *NotifyTransport) OnOpen(fn func()) func() {
	return t.onOpen.Add(fn)
}

// OnClose registers a close hook.
func (t *NotifyTransport) OnClose(fn func(error)) func() {
	return t.onClose.Add(fn)
}

// Close stops the listener and fires the close hooks with a nil error.
func (t *NotifyTransport) Close() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.open = false
	t.handlers = make(map[string]ports.EventHandler)
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	t.fireClose(nil)
	return nil
}

func (t *NotifyTransport) setOpen(open bool) {
	t.mu.Lock()
	t.open = open
	if !open {
		t.handlers = make(map[string]ports.EventHandler)
	}
	t.mu.Unlock()
}

func (t *NotifyTransport) fireOpen() {
	for _, fn := range t.onOpen.Snapshot() {
		fn()
	}
}

func (t *NotifyTransport) fireClose(err error) {
	for _, fn := range t.onClose.Snapshot() {
		fn(err)
	}
}

// discard closes a listening connection before handing it back so the
// pool never reuses a session that is still LISTENing.
func discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Conn().Close(ctx)
	conn.Release()
}

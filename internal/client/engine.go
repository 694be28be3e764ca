package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// ConnectionStatusTag is the tag shared by connection lost/restored notices.
const ConnectionStatusTag = "connection-status"

// DefaultDedupWindow is how long a tagged notification waits for a replacement.
const DefaultDedupWindow = 750 * time.Millisecond

// SoundPlayer plays the audible alert for new live orders.
type SoundPlayer interface {
	Play() error
}

// Preferences exposes the user settings the engine honors.
type Preferences interface {
	SoundEnabled() bool
}

// StaticPreferences is a fixed Preferences value.
type StaticPreferences struct {
	Sound bool
}

func (p StaticPreferences) SoundEnabled() bool { return p.Sound }

// EngineConfig wires an Engine.
type EngineConfig struct {
	Invalidator Invalidator
	Sink        NotificationSink
	// Sound and Preferences are optional; without both no alert is played.
	Sound       SoundPlayer
	Preferences Preferences
	// DedupWindow defaults to DefaultDedupWindow; a negative value disables deduplication.
	DedupWindow time.Duration
}

// Engine turns delivered events into cache invalidations, notifications
// and alerts. Every invalidation is idempotent, so duplicate or reordered
// deliveries converge on the same state.
type Engine struct {
	invalidator Invalidator
	queue       *NotificationQueue
	sound       SoundPlayer
	prefs       Preferences
	logger      *slog.Logger

	// mu serializes event handling with sweeps.
	mu sync.Mutex

	// statusMu guards the connection notice state.
	statusMu   sync.Mutex
	connected  bool
	fatalShown bool
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	window := cfg.DedupWindow
	if window == 0 {
		window = DefaultDedupWindow
	}
	if window < 0 {
		window = 0
	}

	invalidator := cfg.Invalidator
	if invalidator == nil {
		invalidator = InvalidatorFunc(func(...domain.QueryKey) {})
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NotificationSinkFunc(func(Notification) {})
	}

	return &Engine{
		invalidator: invalidator,
		queue:       NewNotificationQueue(sink, window),
		sound:       cfg.Sound,
		prefs:       cfg.Preferences,
		logger:      logger.With("component", "reconciliation_engine"),
	}
}

// Attach registers the engine with m's lifecycle callbacks. The event
// handler of m must call OnEvent.
func (e *Engine) Attach(m *Manager) (detach func()) {
	removeOpen := m.AddOnOpenCallback(e.HandleOpen)
	removeClose := m.AddOnCloseCallback(e.HandleClose)
	return func() {
		removeOpen()
		removeClose()
	}
}

// OnEvent applies one delivered event.
func (e *Engine) OnEvent(_ domain.Channel, env domain.Envelope) {
	def, ok := domain.DefinitionOf(env.Type())
	if !ok {
		e.logger.Info("ignoring event without definition", "event_type", env.Type())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(def.Invalidates) > 0 {
		e.invalidator.Invalidate(def.Invalidates...)
	}

	if !env.SkipNotify() {
		e.queue.Enqueue(Notification{
			EventType: def.Type,
			Kind:      env.NotificationKind(),
			Title:     def.Title,
			Message:   env.Message(),
			Link:      env.Link(),
			Tag:       def.Tag,
		})
	}

	if def.ShouldAlert(env.Link()) {
		e.alert()
	}
}

// Sweep invalidates every query key. It recovers from events missed while
// disconnected.
func (e *Engine) Sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.invalidator.Invalidate(domain.QueryKeys...)
}

// HandleOpen sweeps after a reconnect and shows the restored notice.
func (e *Engine) HandleOpen(info OpenInfo) {
	e.statusMu.Lock()
	e.connected = true
	e.fatalShown = false
	e.statusMu.Unlock()

	if !info.Reconnect {
		return
	}
	e.Sweep()
	e.queue.Enqueue(Notification{
		Kind:    domain.NotificationSuccess,
		Title:   "Connection restored",
		Message: "Live updates resumed",
		Tag:     ConnectionStatusTag,
	})
}

// HandleClose shows a lost-connection notice when an open connection drops,
// or an error for fatal closes. Failed attempts during an outage are silent
// and a fatal error is shown once until the next open.
func (e *Engine) HandleClose(info CloseInfo) {
	e.statusMu.Lock()
	wasConnected := e.connected
	e.connected = false
	showFatal := !info.Transient() && !e.fatalShown
	if showFatal {
		e.fatalShown = true
	}
	e.statusMu.Unlock()

	if info.Transient() {
		if !wasConnected {
			return
		}
		e.queue.Enqueue(Notification{
			Kind:    domain.NotificationInfo,
			Title:   "Connection lost",
			Message: "Reconnecting",
			Tag:     ConnectionStatusTag,
		})
		return
	}
	if !showFatal {
		return
	}
	e.queue.Enqueue(Notification{
		Kind:    domain.NotificationError,
		Title:   "Live updates unavailable",
		Message: info.String(),
		Tag:     ConnectionStatusTag,
	})
}

// Flush shows every held notification.
func (e *Engine) Flush() {
	e.queue.Flush()
}

// alert plays the sound when enabled. Playback failures are logged only.
func (e *Engine) alert() {
	if e.sound == nil || e.prefs == nil || !e.prefs.SoundEnabled() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(e.logger, r)
		}
	}()
	if err := e.sound.Play(); err != nil {
		e.logger.Debug("alert sound unavailable", "error", err)
	}
}

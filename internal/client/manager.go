package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/utils"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// OpenInfo is passed to open callbacks.
type OpenInfo struct {
	// Reconnect is false for the first connection of the manager and true
	// for every later one.
	Reconnect bool
}

// EventHandler receives decoded events. It runs on the connection's read
// goroutine, so events of one connection are handled one at a time in
// arrival order.
type EventHandler func(channel domain.Channel, env domain.Envelope)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// SubscribeTimeout bounds the wait for a subscription acknowledgement.
	SubscribeTimeout time.Duration
	// InitialBackoff and MaxBackoff shape the reconnect backoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ReadTimeout drops a connection that has been silent this long. It
	// must exceed the server's ping interval.
	ReadTimeout time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 75 * time.Second
	}
	return c
}

const writeWait = 10 * time.Second

// session is one live connection.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	info    CloseInfo
}

func (s *session) write(msg domain.ClientMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// Manager keeps one realtime connection alive and subscribed to the
// declared channels. It reconnects with backoff until Close is called or
// the Run context ends.
type Manager struct {
	dialer  Dialer
	handler EventHandler
	cfg     ManagerConfig
	logger  *slog.Logger

	onOpen  *utils.Registry[func(OpenInfo)]
	onClose *utils.Registry[func(CloseInfo)]

	mu            sync.Mutex
	state         State
	interests     map[string]domain.Channel
	order         []string
	current       *session
	pending       map[string]chan domain.ServerMessage
	connectedOnce bool
	cancel        context.CancelFunc
	running       chan struct{}
}

// NewManager creates a manager. handler may be nil.
func NewManager(dialer Dialer, handler EventHandler, cfg ManagerConfig, logger *slog.Logger) *Manager {
	return &Manager{
		dialer:    dialer,
		handler:   handler,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "subscription_manager"),
		onOpen:    utils.NewRegistry[func(OpenInfo)](),
		onClose:   utils.NewRegistry[func(CloseInfo)](),
		interests: make(map[string]domain.Channel),
		pending:   make(map[string]chan domain.ServerMessage),
	}
}

// AddOnOpenCallback registers fn to run after every successful (re)connect,
// once all declared channels are subscribed. Callbacks run in registration order.
func (m *Manager) AddOnOpenCallback(fn func(OpenInfo)) (remove func()) {
	return m.onOpen.Add(fn)
}

// AddOnCloseCallback registers fn to run every time a connection ends or a
// connection attempt fails.
func (m *Manager) AddOnCloseCallback(fn func(CloseInfo)) (remove func()) {
	return m.onClose.Add(fn)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Channels returns the declared channels in declaration order.
func (m *Manager) Channels() []domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Channel, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.interests[name])
	}
	return out
}

// Declare records interest in channel. When connected it subscribes right
// away and returns the server's answer; otherwise the channel is subscribed
// on the next connect. A denied channel is forgotten.
func (m *Manager) Declare(ctx context.Context, channel domain.Channel) error {
	if channel.IsZero() {
		return fmt.Errorf("%w: empty channel", apperrors.ErrMalformedChannel)
	}

	m.mu.Lock()
	name := channel.Name()
	if _, ok := m.interests[name]; !ok {
		m.interests[name] = channel
		m.order = append(m.order, name)
	}
	sess := m.current
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || sess == nil {
		return nil
	}

	err := m.subscribe(ctx, sess, domain.MessageSubscribe, channel)
	switch {
	case errors.Is(err, apperrors.ErrSubscriptionDenied):
		m.forget(name)
	case errors.Is(err, apperrors.ErrSubscribeTimeout):
		// The channel stays declared and is retried on the next connect.
		m.logger.Warn("subscribe timed out, reconnecting", "channel", name)
		_ = sess.conn.Close()
	}
	return err
}

// Forget drops interest in channel and unsubscribes it when connected.
func (m *Manager) Forget(ctx context.Context, channel domain.Channel) error {
	name := channel.Name()
	if !m.forget(name) {
		return nil
	}

	m.mu.Lock()
	sess := m.current
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || sess == nil {
		return nil
	}
	return m.subscribe(ctx, sess, domain.MessageUnsubscribe, channel)
}

func (m *Manager) forget(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interests[name]; !ok {
		return false
	}
	delete(m.interests, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Run connects and keeps reconnecting until ctx ends or Close is called.
// It returns nil on teardown.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.running != nil {
		m.mu.Unlock()
		return errors.New("subscription manager is already running")
	}
	running := make(chan struct{})
	m.running = running
	m.cancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = StateDisconnected
		m.running = nil
		m.cancel = nil
		m.mu.Unlock()
		close(running)
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialBackoff
	b.MaxInterval = m.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.setState(StateConnecting)
		info, opened := m.session(ctx)
		if ctx.Err() != nil {
			m.setState(StateClosing)
			m.fireClose(info)
			return nil
		}

		m.setState(StateDisconnected)
		m.fireClose(info)

		if opened {
			b.Reset()
		}
		wait := b.NextBackOff()
		if !info.Transient() {
			wait = m.cfg.MaxBackoff
		}
		m.logger.Warn("realtime connection closed",
			"close", info.String(),
			"transient", info.Transient(),
			"retry_in", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close tears the manager down and waits for Run to return.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, running := m.cancel, m.running
	if running != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-running
}

// session runs one connection to completion. opened reports whether the
// connection reached the connected state.
func (m *Manager) session(ctx context.Context) (info CloseInfo, opened bool) {
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return closeInfoFromError(err), false
	}

	sess := &session{conn: conn, done: make(chan struct{})}
	go m.readLoop(sess)

	defer m.detach(sess)

	// Channels declared while connecting are picked up by repeating the pass
	// until every declared channel is subscribed on this session.
	subscribed := make(map[string]bool)
	for {
		if err := m.subscribeAll(ctx, sess, subscribed); err != nil {
			info := sess.closeInfo(err)
			if errors.Is(err, apperrors.ErrSubscribeTimeout) || errors.Is(err, apperrors.ErrUnavailable) {
				info = CloseInfo{Code: websocket.CloseTryAgainLater, Err: err}
			}
			m.closeSession(sess, websocket.CloseNormalClosure)
			return info, false
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			m.closeSession(sess, websocket.CloseNormalClosure)
			return CloseInfo{Code: websocket.CloseNormalClosure, Reason: "closed by client"}, false
		}
		if m.hasUnsubscribedLocked(subscribed) {
			m.mu.Unlock()
			continue
		}
		break
	}
	m.state = StateConnected
	m.current = sess
	reconnect := m.connectedOnce
	m.connectedOnce = true
	m.mu.Unlock()

	m.logger.Info("realtime connection open", "reconnect", reconnect)
	m.fireOpen(OpenInfo{Reconnect: reconnect})

	select {
	case <-sess.done:
		return sess.info, true
	case <-ctx.Done():
		m.closeSession(sess, websocket.CloseNormalClosure)
		return CloseInfo{Code: websocket.CloseNormalClosure, Reason: "closed by client"}, true
	}
}

// closeInfo returns the read loop's close reason if the connection already
// ended, otherwise one built from err.
func (s *session) closeInfo(err error) CloseInfo {
	select {
	case <-s.done:
		return s.info
	default:
		return closeInfoFromError(err)
	}
}

func (m *Manager) detach(sess *session) {
	m.mu.Lock()
	if m.current == sess {
		m.current = nil
	}
	m.mu.Unlock()
}

// closeSession sends a close frame and waits for the read loop to end.
func (m *Manager) closeSession(sess *session, code int) {
	frame := websocket.FormatCloseMessage(code, "")
	_ = sess.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
	_ = sess.conn.Close()
	<-sess.done
}

// subscribeAll subscribes every declared channel not already in subscribed
// and records the successes there. Denied channels are dropped; any other
// failure aborts the connection attempt.
func (m *Manager) subscribeAll(ctx context.Context, sess *session, subscribed map[string]bool) error {
	for _, ch := range m.Channels() {
		if subscribed[ch.Name()] {
			continue
		}
		err := m.subscribe(ctx, sess, domain.MessageSubscribe, ch)
		switch {
		case err == nil:
			subscribed[ch.Name()] = true
		case errors.Is(err, apperrors.ErrSubscriptionDenied), errors.Is(err, apperrors.ErrMalformedChannel):
			m.logger.Warn("dropping rejected channel", "channel", ch.Name(), "error", err)
			m.forget(ch.Name())
		default:
			return fmt.Errorf("subscribe %s: %w", ch.Name(), err)
		}
	}
	return nil
}

// hasUnsubscribedLocked reports whether a declared channel is missing from
// subscribed. m.mu must be held.
func (m *Manager) hasUnsubscribedLocked(subscribed map[string]bool) bool {
	for _, name := range m.order {
		if !subscribed[name] {
			return true
		}
	}
	return false
}

// subscribe sends a SUBSCRIBE or UNSUBSCRIBE request and waits for its answer.
func (m *Manager) subscribe(ctx context.Context, sess *session, msgType string, channel domain.Channel) error {
	id := uuid.NewString()
	reply := make(chan domain.ServerMessage, 1)

	m.mu.Lock()
	m.pending[id] = reply
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	if err := sess.write(domain.ClientMessage{Type: msgType, ID: id, Channel: channel.Name()}); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportClosed, err)
	}

	timer := time.NewTimer(m.cfg.SubscribeTimeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		return replyError(msg)
	case <-timer.C:
		return apperrors.ErrSubscribeTimeout
	case <-sess.done:
		return apperrors.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replyError(msg domain.ServerMessage) error {
	if msg.Type != domain.MessageError {
		return nil
	}
	var base error
	switch msg.Code {
	case domain.CodeForbidden:
		base = apperrors.ErrSubscriptionDenied
	case domain.CodeInvalidChannel:
		base = apperrors.ErrMalformedChannel
	case domain.CodeUnavailable:
		base = apperrors.ErrUnavailable
	case domain.CodeRateLimited:
		base = apperrors.ErrRateLimited
	default:
		base = apperrors.ErrBadRequest
	}
	return fmt.Errorf("%w: %s", base, msg.Error)
}

func (m *Manager) readLoop(sess *session) {
	defer close(sess.done)

	refresh := func() {
		_ = sess.conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	}
	refresh()
	sess.conn.SetPingHandler(func(data string) error {
		refresh()
		err := sess.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			sess.info = closeInfoFromError(err)
			_ = sess.conn.Close()
			return
		}
		refresh()
		m.handleMessage(data)
	}
}

func (m *Manager) handleMessage(data []byte) {
	var msg domain.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("failed to decode server message", "error", err)
		return
	}

	switch msg.Type {
	case domain.MessageEvent:
		m.handleEvent(msg)

	case domain.MessageSubscribed, domain.MessageUnsubscribed, domain.MessageError:
		m.mu.Lock()
		reply, ok := m.pending[msg.ID]
		m.mu.Unlock()
		if ok {
			select {
			case reply <- msg:
			default:
			}
			return
		}
		if msg.Type == domain.MessageError {
			m.logger.Warn("server error", "code", msg.Code, "channel", msg.Channel, "error", msg.Error)
		}

	case domain.MessagePong:

	default:
		m.logger.Debug("ignoring server message", "type", msg.Type)
	}
}

func (m *Manager) handleEvent(msg domain.ServerMessage) {
	channel, err := domain.ParseChannel(msg.Channel)
	if err != nil {
		m.logger.Warn("event on malformed channel", "channel", msg.Channel, "error", err)
		return
	}

	env, err := domain.DecodeEnvelope(msg.Event)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownEventType) {
			m.logger.Info("ignoring unknown event type", "channel", msg.Channel, "error", err)
			return
		}
		m.logger.Warn("failed to decode event", "channel", msg.Channel, "error", err)
		return
	}

	if m.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(m.logger, r)
		}
	}()
	m.handler(channel, env)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) fireOpen(info OpenInfo) {
	for _, fn := range m.onOpen.Snapshot() {
		m.safeCall(func() { fn(info) })
	}
}

func (m *Manager) fireClose(info CloseInfo) {
	for _, fn := range m.onClose.Snapshot() {
		m.safeCall(func() { fn(info) })
	}
}

func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(m.logger, r)
		}
	}()
	fn()
}

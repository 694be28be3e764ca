package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	defaultSendBuffer = 256
)

// ClientConfig tunes a single connection.
type ClientConfig struct {
	SendBuffer   int
	PongWait     time.Duration
	PingInterval time.Duration
	// MessageRate limits inbound client messages per second; zero disables it.
	MessageRate  float64
	MessageBurst int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	// Send pings to peer with this period. Must be less than pongWait.
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 1
	}
	return c
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// ID identifies this connection.
	ID string

	Principal domain.Principal

	hub  *Hub
	conn *websocket.Conn
	cfg  ClientConfig

	// send is the buffered channel of encoded outbound messages.
	send chan []byte

	// mu guards closed and closeCode; send is only written while closed is false.
	mu        sync.Mutex
	closed    bool
	closeCode int

	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, principal domain.Principal, cfg ClientConfig, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	id := uuid.NewString()

	c := &Client{
		ID:        id,
		Principal: principal,
		hub:       hub,
		conn:      conn,
		cfg:       cfg,
		send:      make(chan []byte, cfg.SendBuffer),
		closeCode: websocket.CloseNormalClosure,
		logger: logger.With(
			"connection_id", id,
			"user_id", principal.ID,
			"role", string(principal.Role),
		),
	}
	if cfg.MessageRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst)
	}
	return c
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client is already closed.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue exactly once. The write pump then
// sends a close frame with code.
func (c *Client) closeSend(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

func (c *Client) currentCloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// reply encodes and queues a control message for this client only.
func (c *Client) reply(msg domain.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode reply", "type", msg.Type, "error", err)
		return
	}
	if !c.trySend(data) {
		c.logger.Debug("reply dropped", "type", msg.Type)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine and returns when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				frame := websocket.FormatCloseMessage(c.currentCloseCode(), "")
				if err := c.conn.WriteMessage(websocket.CloseMessage, frame); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming Message Handling ---

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.reply(domain.ServerMessage{Type: domain.MessageError, Code: domain.CodeBadRequest, Error: "malformed message"})
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.reply(domain.ServerMessage{
			Type:    domain.MessageError,
			ID:      msg.ID,
			Channel: msg.Channel,
			Code:    domain.CodeRateLimited,
			Error:   apperrors.ErrRateLimited.Error(),
		})
		return
	}

	switch msg.Type {
	case domain.MessageSubscribe:
		c.handleSubscribe(msg)

	case domain.MessageUnsubscribe:
		c.handleUnsubscribe(msg)

	case domain.MessagePing:
		// Client-side keep-alive, respond with pong
		c.reply(domain.ServerMessage{Type: domain.MessagePong})

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
		c.reply(domain.ServerMessage{Type: domain.MessageError, ID: msg.ID, Code: domain.CodeBadRequest, Error: "unknown message type"})
	}
}

// handleSubscribe authorizes before the hub sees the request, so no event
// of a forbidden channel is ever queued for this client.
func (c *Client) handleSubscribe(msg domain.ClientMessage) {
	ch, err := domain.ParseChannel(msg.Channel)
	if err != nil {
		c.hub.metrics.SubscriptionHandled("unknown", metrics.ResultInvalid)
		c.reject(msg, domain.CodeInvalidChannel, err)
		return
	}

	if !c.hub.router.AuthorizeSubscription(c.Principal, ch) {
		c.hub.metrics.SubscriptionHandled(string(ch.Kind()), metrics.ResultDenied)
		c.logger.Info("subscription denied", "channel", ch.Name())
		c.reject(msg, domain.CodeForbidden, apperrors.ErrSubscriptionDenied)
		return
	}

	c.hub.requestSubscribe(subscription{client: c, id: msg.ID, channel: ch})
}

func (c *Client) reject(msg domain.ClientMessage, code string, err error) {
	c.reply(domain.ServerMessage{
		Type:    domain.MessageError,
		ID:      msg.ID,
		Channel: msg.Channel,
		Code:    code,
		Error:   err.Error(),
	})
}

func (c *Client) handleUnsubscribe(msg domain.ClientMessage) {
	ch, err := domain.ParseChannel(msg.Channel)
	if err != nil {
		c.reject(msg, domain.CodeInvalidChannel, err)
		return
	}

	c.hub.requestUnsubscribe(subscription{client: c, id: msg.ID, channel: ch})
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

const (
	defaultQueueSize        = 1024
	defaultTransportTimeout = 5 * time.Second
)

// HubConfig tunes the hub.
type HubConfig struct {
	// QueueSize bounds deliveries waiting for the hub loop.
	QueueSize int
	// TransportTimeout bounds a transport subscribe call.
	TransportTimeout time.Duration
}

type subscription struct {
	client  *Client
	id      string
	channel domain.Channel
}

type delivery struct {
	channel domain.Channel
	env     domain.Envelope
}

// Hub maintains the set of active Clients and fans transport deliveries out
// to them. All room state is owned by the Run goroutine, which processes
// deliveries one at a time, so each subscriber sees a channel in order.
type Hub struct {
	transport ports.Transport
	router    ports.ChannelRouter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       HubConfig

	// clients maps each connection to the channel names it joined.
	clients map[*Client]map[string]struct{}

	// rooms maps channel names to subscribed clients.
	rooms map[string]map[*Client]struct{}

	register      chan *Client
	unregister    chan *Client
	subscribe     chan subscription
	unsubscribe   chan subscription
	deliveries    chan delivery
	transportDown chan error

	// lost collects channels whose deliveries overflowed the queue.
	lostMu     sync.Mutex
	lost       map[string]struct{}
	lostSignal chan struct{}

	clientCount atomic.Int64
	roomCount   atomic.Int64

	done        chan struct{}
	removeHooks []func()
}

// NewHub creates a new WebSocket hub on top of transport.
func NewHub(transport ports.Transport, router ports.ChannelRouter, m *metrics.Metrics, logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.TransportTimeout <= 0 {
		cfg.TransportTimeout = defaultTransportTimeout
	}

	h := &Hub{
		transport:     transport,
		router:        router,
		metrics:       m,
		logger:        logger.With("component", "websocket_hub"),
		cfg:           cfg,
		clients:       make(map[*Client]map[string]struct{}),
		rooms:         make(map[string]map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscription),
		unsubscribe:   make(chan subscription),
		deliveries:    make(chan delivery, cfg.QueueSize),
		transportDown: make(chan error, 1),
		lost:          make(map[string]struct{}),
		lostSignal:    make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	h.removeHooks = append(h.removeHooks,
		transport.OnClose(func(err error) {
			select {
			case h.transportDown <- err:
			default:
			}
		}),
		transport.OnOpen(func() {
			h.logger.Info("transport open")
		}),
	)
	return h
}

// Run starts the hub's event loop and blocks until ctx is done.
// This MUST be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, remove := range h.removeHooks {
			remove()
		}
		h.dropAll(websocket.CloseGoingAway)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client, websocket.CloseNormalClosure)

		case sub := <-h.subscribe:
			h.subscribeClient(sub)

		case sub := <-h.unsubscribe:
			h.unsubscribeClient(sub)

		case d := <-h.deliveries:
			h.broadcast(d)

		case err := <-h.transportDown:
			h.logger.Warn("transport closed, dropping all clients", "error", err, "clients", len(h.clients))
			h.dropAll(websocket.CloseServiceRestart)

		case <-h.lostSignal:
			h.evictLost()
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub and all rooms.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) requestSubscribe(sub subscription) {
	select {
	case h.subscribe <- sub:
	case <-h.done:
	}
}

func (h *Hub) requestUnsubscribe(sub subscription) {
	select {
	case h.unsubscribe <- sub:
	case <-h.done:
	}
}

// deliver is the transport handler. It never blocks the transport: when the
// hub queue is full the channel is marked lost and its subscribers are
// disconnected so they resynchronize on reconnect.
func (h *Hub) deliver(channel domain.Channel, env domain.Envelope) {
	select {
	case h.deliveries <- delivery{channel: channel, env: env}:
	default:
		h.metrics.Delivery(metrics.ResultDropped, 1)
		h.lostMu.Lock()
		h.lost[channel.Name()] = struct{}{}
		h.lostMu.Unlock()
		select {
		case h.lostSignal <- struct{}{}:
		default:
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.clients[client] = make(map[string]struct{})
	h.updateCounts()

	client.logger.Info("client registered", "local_connections", len(h.clients))
}

// removeClient removes a client from the hub and all rooms.
func (h *Hub) removeClient(client *Client, code int) {
	channels, ok := h.clients[client]
	if !ok {
		return
	}
	delete(h.clients, client)

	for name := range channels {
		h.leaveRoom(client, name)
	}

	client.closeSend(code)
	h.updateCounts()

	client.logger.Info("client unregistered", "close_code", code)
}

func (h *Hub) subscribeClient(sub subscription) {
	channels, ok := h.clients[sub.client]
	if !ok {
		return
	}
	name := sub.channel.Name()

	room, exists := h.rooms[name]
	if !exists {
		if err := h.openRoom(sub.channel); err != nil {
			h.metrics.SubscriptionHandled(string(sub.channel.Kind()), metrics.ResultUnavailable)
			sub.client.logger.Warn("transport subscribe failed", "channel", name, "error", err)
			sub.client.reply(domain.ServerMessage{
				Type:    domain.MessageError,
				ID:      sub.id,
				Channel: name,
				Code:    domain.CodeUnavailable,
				Error:   "channel temporarily unavailable",
			})
			return
		}
		room = make(map[*Client]struct{})
		h.rooms[name] = room
	}

	room[sub.client] = struct{}{}
	channels[name] = struct{}{}
	h.updateCounts()
	h.metrics.SubscriptionHandled(string(sub.channel.Kind()), metrics.ResultAccepted)

	sub.client.logger.Debug("client subscribed", "channel", name)
	sub.client.reply(domain.ServerMessage{Type: domain.MessageSubscribed, ID: sub.id, Channel: name})
}

func (h *Hub) openRoom(channel domain.Channel) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.TransportTimeout)
	defer cancel()

	err := h.transport.Subscribe(ctx, channel, h.deliver)
	if errors.Is(err, apperrors.ErrAlreadySubscribed) {
		return nil
	}
	return err
}

func (h *Hub) unsubscribeClient(sub subscription) {
	channels, ok := h.clients[sub.client]
	if !ok {
		return
	}
	name := sub.channel.Name()

	if _, joined := channels[name]; joined {
		delete(channels, name)
		h.leaveRoom(sub.client, name)
		h.updateCounts()
	}

	sub.client.reply(domain.ServerMessage{Type: domain.MessageUnsubscribed, ID: sub.id, Channel: name})
}

// leaveRoom removes client from a room and releases the transport
// subscription when the room becomes empty.
func (h *Hub) leaveRoom(client *Client, name string) {
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) > 0 {
		return
	}
	delete(h.rooms, name)

	ch, err := domain.ParseChannel(name)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.TransportTimeout)
	defer cancel()
	if err := h.transport.Unsubscribe(ctx, ch); err != nil {
		h.logger.Warn("transport unsubscribe failed", "channel", name, "error", err)
	}
}

// broadcast sends one envelope to every client in its channel's room.
// The message is encoded once. A client whose buffer is full is dropped.
func (h *Hub) broadcast(d delivery) {
	name := d.channel.Name()
	room, ok := h.rooms[name]
	if !ok || len(room) == 0 {
		return
	}

	event, err := json.Marshal(d.env)
	if err != nil {
		h.logger.Error("failed to encode event", "event_type", d.env.Type(), "error", err)
		return
	}
	msg, err := json.Marshal(domain.ServerMessage{Type: domain.MessageEvent, Channel: name, Event: event})
	if err != nil {
		h.logger.Error("failed to encode event message", "event_type", d.env.Type(), "error", err)
		return
	}

	h.logger.Debug("broadcasting event",
		"event_type", d.env.Type(),
		"channel", name,
		"client_count", len(room),
	)

	var slow []*Client
	delivered := 0
	for client := range room {
		if client.trySend(msg) {
			delivered++
			continue
		}
		slow = append(slow, client)
	}

	for _, client := range slow {
		client.logger.Warn("client send buffer full, disconnecting")
		h.removeClient(client, websocket.CloseTryAgainLater)
	}

	h.metrics.Delivery(metrics.ResultDelivered, delivered)
	h.metrics.Delivery(metrics.ResultDropped, len(slow))
}

// evictLost disconnects every subscriber of a channel that lost deliveries.
func (h *Hub) evictLost() {
	h.lostMu.Lock()
	lost := h.lost
	h.lost = make(map[string]struct{})
	h.lostMu.Unlock()

	for name := range lost {
		room := h.rooms[name]
		clients := make([]*Client, 0, len(room))
		for client := range room {
			clients = append(clients, client)
		}
		if len(clients) > 0 {
			h.logger.Warn("delivery queue overflowed, disconnecting channel subscribers",
				"channel", name,
				"clients", len(clients),
			)
		}
		for _, client := range clients {
			h.removeClient(client, websocket.CloseTryAgainLater)
		}
	}
}

// dropAll disconnects every client. Rooms are emptied without calling the
// transport, whose subscriptions are already gone when it closed.
func (h *Hub) dropAll(code int) {
	for client := range h.clients {
		client.closeSend(code)
	}
	h.clients = make(map[*Client]map[string]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.updateCounts()
}

func (h *Hub) updateCounts() {
	h.clientCount.Store(int64(len(h.clients)))
	h.roomCount.Store(int64(len(h.rooms)))
	h.metrics.SetLocalClients(len(h.clients))
}

// ClientCount returns the number of local connections.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// RoomCount returns the number of channels with at least one local subscriber.
func (h *Hub) RoomCount() int {
	return int(h.roomCount.Load())
}

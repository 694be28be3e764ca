package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	mw "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/websocket"
	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/config"
)

// ConnectionTracker counts live websocket connections.
type ConnectionTracker interface {
	Connect(ctx context.Context, connID string) (int64, error)
	Disconnect(ctx context.Context, connID string) (int64, error)
}

const trackerTimeout = 5 * time.Second

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	hub       *wsAdapter.Hub
	tm        *auth.TokenManager
	tracker   ConnectionTracker
	clientCfg wsAdapter.ClientConfig
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	tracker ConnectionTracker,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:     hub,
		tm:      tm,
		tracker: tracker,
		clientCfg: wsAdapter.ClientConfig{
			SendBuffer:   cfg.Realtime.ClientBuffer,
			PongWait:     cfg.WebSocket.PongWait,
			PingInterval: cfg.WebSocket.PingInterval,
			MessageRate:  cfg.WebSocket.MessageRate,
			MessageBurst: cfg.WebSocket.MessageBurst,
		},
		logger: logger.With("component", "websocket_handler"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP authenticates the handshake, upgrades it and runs the client
// pumps. The connection is counted once it is registered with the hub and
// released when its read pump ends.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.logger.Warn("websocket connection rejected: missing token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
		)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tm.ValidateToken(tokenString)
	if err != nil {
		h.logger.Warn("websocket connection rejected: invalid token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}
	principal := claims.Principal()
	mw.RecordCaller(r.Context(), principal)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"user_id", principal.ID,
			"error", err,
		)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, principal, h.clientCfg, h.logger)
	if !h.hub.Register(client) {
		frame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	h.logger.Info("websocket connection established",
		"request_id", requestID,
		"connection_id", client.ID,
		"user_id", principal.ID,
		"role", string(principal.Role),
		"remote_addr", r.RemoteAddr,
	)

	h.track(client.ID, true)

	go client.WritePump()
	go func() {
		client.ReadPump()
		h.track(client.ID, false)
	}()
}

func (h *WebSocketHandler) track(connID string, connected bool) {
	if h.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), trackerTimeout)
	defer cancel()

	var err error
	if connected {
		_, err = h.tracker.Connect(ctx, connID)
	} else {
		_, err = h.tracker.Disconnect(ctx, connID)
	}
	if err != nil {
		h.logger.Warn("failed to update connection count",
			"connection_id", connID,
			"connected", connected,
			"error", err,
		)
	}
}

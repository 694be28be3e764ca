package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http"
	wsAdapter "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/websocket"
	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/secondary/memory"
	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/config"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
)

type testServer struct {
	*httptest.Server
	tokens    *auth.TokenManager
	transport *memory.Emitter
	counter   *services.ConnectionCounter
	hub       *wsAdapter.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    time.Second,
			PongWait:        2 * time.Second,
		},
		Realtime: config.RealtimeConfig{ClientBuffer: 16, HubQueue: 16},
		App:      config.AppConfig{Environment: "development", InstanceID: "test-1"},
	}

	transport := memory.NewEmitter(logger)
	require.NoError(t, transport.Connect(ctx))

	router := services.NewChannelRouter()
	publisher := services.NewPublisher(router, transport, nil, logger)
	counter := services.NewConnectionCounter(memory.NewCounterStore(), nil, logger)
	hub := wsAdapter.NewHub(transport, router, nil, logger, wsAdapter.HubConfig{QueueSize: 16})
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	errorHandler := httpAdapter.NewErrorHandler(logger)

	handler := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		TokenManager: tokens,
		Logger:       logger,
		Health:       httpAdapter.NewHealthHandler("test", map[string]httpAdapter.HealthChecker{"transport": transport}),
		WebSocket:    httpAdapter.NewWebSocketHandler(hub, tokens, counter, cfg, logger),
		Events:       httpAdapter.NewEventsHandler(publisher, errorHandler, logger),
		Payments:     httpAdapter.NewPaymentsHandler(services.NewDepositNotifier(publisher, logger), errorHandler, logger),
		Realtime:     httpAdapter.NewRealtimeHandler(router, publisher, hub, counter, "test-1", errorHandler, logger),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hubDone
	})

	return &testServer{Server: srv, tokens: tokens, transport: transport, counter: counter, hub: hub}
}

func (s *testServer) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) domain.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg domain.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[httpAdapter.HealthResponse](t, resp)
	assert.Equal(t, "healthy", ready.Checks["transport"].Status)

	srv.transport.Fail(nil)
	resp = srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublishEvent(t *testing.T) {
	srv := newTestServer(t)
	server := srv.token(t, "billing-service", domain.RoleServer)

	t.Run("requires authentication", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{"type": "MENU_ADD"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("requires server role", func(t *testing.T) {
		admin := srv.token(t, "a1", domain.RoleAdmin)
		resp := srv.do(t, http.MethodPost, "/api/v1/events", admin, map[string]any{"type": "MENU_ADD"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("publishes to resolved channels", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{
			"type":    "USER_AUTHORITY_UPDATE",
			"ownerId": "u1",
			"message": "You are now staff",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		body := decode[httpAdapter.EmitResponse](t, resp)
		assert.Equal(t, []string{"admin-message", "user-message-u1"}, body.Channels)
		assert.Equal(t, 2, body.Published)
	})

	t.Run("rejects unknown event types", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{"type": "ORDER_REFUND"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		body := decode[httpAdapter.ValidationErrorResponse](t, resp)
		assert.Contains(t, body.Fields, "type")
	})

	t.Run("rejects user event without owner", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{"type": "ORDER_ADD"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{"type": "MENU_ADD", "payload": 1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSettleDeposit(t *testing.T) {
	srv := newTestServer(t)
	server := srv.token(t, "payments", domain.RoleServer)

	resp := srv.do(t, http.MethodPost, "/api/v1/payments/settled", server, map[string]any{
		"userId":    "u7",
		"depositId": "d-100",
		"status":    "recharge",
		"amount":    300,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[httpAdapter.EmitResponse](t, resp)
	assert.Equal(t, []string{"user-message-u7", "staff-message"}, body.Channels)

	resp = srv.do(t, http.MethodPost, "/api/v1/payments/settled", server, map[string]any{
		"userId":    "u7",
		"depositId": "d-100",
		"status":    "pending",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRealtimeChannelsAndStats(t *testing.T) {
	srv := newTestServer(t)

	staff := srv.token(t, "s1", domain.RoleStaff)
	resp := srv.do(t, http.MethodGet, "/api/v1/realtime/channels", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[httpAdapter.ListResponse[httpAdapter.ChannelInfo]](t, resp)
	assert.Equal(t, []httpAdapter.ChannelInfo{
		{Name: "public-message", Kind: "public"},
		{Name: "staff-message", Kind: "staff"},
		{Name: "user-message-s1", Kind: "user"},
	}, list.Data)

	resp = srv.do(t, http.MethodGet, "/api/v1/realtime/stats", staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := srv.token(t, "a1", domain.RoleAdmin)
	resp = srv.do(t, http.MethodGet, "/api/v1/realtime/stats", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[httpAdapter.StatsResponse](t, resp)
	assert.Equal(t, "test-1", stats.InstanceID)
	assert.Zero(t, stats.ConnectedUsers)
}

func TestTestPush(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/v1/push/test", srv.token(t, "u3", domain.RoleUser), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[httpAdapter.EmitResponse](t, resp)
	assert.Equal(t, []string{"user-message-u3"}, body.Channels)

	resp = srv.do(t, http.MethodPost, "/api/v1/push/test", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_RejectsBadTokens(t *testing.T) {
	srv := newTestServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, srv.token(t, "u1", domain.RoleUser))

	require.Eventually(t, func() bool {
		total, _ := srv.counter.Total(context.Background())
		return total == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Own channel is allowed, the staff channel is not.
	require.NoError(t, conn.WriteJSON(domain.ClientMessage{Type: domain.MessageSubscribe, ID: "1", Channel: "user-message-u1"}))
	msg := readServerMessage(t, conn)
	assert.Equal(t, domain.MessageSubscribed, msg.Type)
	assert.Equal(t, "1", msg.ID)

	require.NoError(t, conn.WriteJSON(domain.ClientMessage{Type: domain.MessageSubscribe, ID: "2", Channel: "staff-message"}))
	msg = readServerMessage(t, conn)
	assert.Equal(t, domain.MessageError, msg.Type)
	assert.Equal(t, domain.CodeForbidden, msg.Code)

	server := srv.token(t, "orders", domain.RoleServer)
	resp := srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{"type": "POS_ADD", "link": "/pos/live"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = srv.do(t, http.MethodPost, "/api/v1/events", server, map[string]any{
		"type":    "ORDER_ADD",
		"ownerId": "u1",
		"message": "Order #1 placed",
		"link":    "/order/1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg = readServerMessage(t, conn)
	require.Equal(t, domain.MessageEvent, msg.Type)
	assert.Equal(t, "user-message-u1", msg.Channel)
	env, err := domain.DecodeEnvelope(msg.Event)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOrderAdd, env.Type())
	assert.Equal(t, "Order #1 placed", env.Message())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		total, _ := srv.counter.Total(context.Background())
		return total == 0 && srv.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_TransportLossDropsClients(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, srv.token(t, "u1", domain.RoleUser))

	require.NoError(t, conn.WriteJSON(domain.ClientMessage{Type: domain.MessageSubscribe, ID: "1", Channel: "public-message"}))
	require.Equal(t, domain.MessageSubscribed, readServerMessage(t, conn).Type)

	srv.transport.Fail(assert.AnError)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseServiceRestart, closeErr.Code)
}

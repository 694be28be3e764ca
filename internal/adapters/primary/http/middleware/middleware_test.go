package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	token, err := tm.GenerateToken("u1", domain.RoleStaff)
	require.NoError(t, err)

	var seen domain.Principal
	h := JWTMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, r)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"`+unauthorizedMessage(tt.header)+`","code":"UNAUTHORIZED"}`, rec.Body.String())
			}
		})
	}

	assert.Equal(t, domain.Principal{ID: "u1", Role: domain.RoleStaff}, seen)
}

func unauthorizedMessage(header string) string {
	switch {
	case header == "":
		return "Authorization header is required"
	case !strings.HasPrefix(header, "Bearer ") || header == "Bearer ":
		return "Authorization header format must be Bearer {token}"
	default:
		return "Invalid or expired token"
	}
}

func withPrincipal(r *http.Request, id string, role domain.Role) *http.Request {
	claims := &auth.Claims{UserID: id, Role: role}
	return r.WithContext(context.WithValue(r.Context(), UserClaimsKey, claims))
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(domain.RoleAdmin)(okHandler)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for role, want := range map[domain.Role]int{
		domain.RoleUser:   http.StatusForbidden,
		domain.RoleStaff:  http.StatusForbidden,
		domain.RoleAdmin:  http.StatusNoContent,
		domain.RoleServer: http.StatusNoContent,
	} {
		rec := serve(h, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), "u1", role))
		assert.Equal(t, want, rec.Code, "%s", role)
	}
}

func TestRateLimiter_KeysByUserThenIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	h := rl.Middleware(okHandler)

	anon := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		return r
	}

	assert.Equal(t, http.StatusNoContent, serve(h, anon()).Code)
	rec := serve(h, anon())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Same address, separate budget per user.
	assert.Equal(t, http.StatusNoContent, serve(h, withPrincipal(anon(), "u1", domain.RoleUser)).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, withPrincipal(anon(), "u2", domain.RoleUser)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withPrincipal(anon(), "u1", domain.RoleUser)).Code)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(context.Background(), RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, TTL: time.Minute})

	rl.Allow("a")
	rl.evictIdle(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", getClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(r))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	rec := serve(h, r)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = serve(h, r)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_QueryAndSanitizing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/ws?request_id=kiosk-7.42", nil))
	assert.Equal(t, "kiosk-7.42", seen, "websocket clients pass the id in the query")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/ws?request_id=from-query", nil)
	r.Header.Set(RequestIDHeader, "from-header")
	serve(h, r)
	assert.Equal(t, "from-header", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "bad id;level=ERROR")
	serve(h, r)
	assert.Len(t, seen, 36)
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLogger_NamesCallerAndRoute(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	token, err := tm.GenerateToken("u1", domain.RoleStaff)
	require.NoError(t, err)

	var buf bytes.Buffer
	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(RequestLogger(logging.NewLogger(logging.Config{Output: &buf})))
	router.With(JWTMiddleware(tm)).Get("/api/v1/orders/{id}", okHandler)
	router.Get("/api/v1/menu", okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/orders/12", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusNoContent, serve(router, r).Code)

	require.Equal(t, http.StatusNoContent, serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil)).Code)

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)

	authed := lines[0]
	assert.Equal(t, "u1", authed["user_id"])
	assert.Equal(t, "STAFF", authed["role"])
	assert.Equal(t, "/api/v1/orders/{id}", authed["route"])
	assert.EqualValues(t, http.StatusNoContent, authed["status"])
	assert.NotEmpty(t, authed["request_id"])

	anon := lines[1]
	assert.NotContains(t, anon, "user_id")
	assert.Equal(t, "/api/v1/menu", anon["route"])
}

func TestRequestLogger_RejectedTokenLogsWithoutCaller(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)

	var buf bytes.Buffer
	h := RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil)))(JWTMiddleware(tm)(okHandler))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.NotContains(t, lines[0], "user_id")
	assert.NotContains(t, lines[0], "route")
}

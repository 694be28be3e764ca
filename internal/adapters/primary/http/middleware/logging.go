package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// statusRecorder captures what the handler wrote. A hijacked writer is a
// realtime connection whose lifetime is the request duration.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	written  int64
	hijacked bool
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response does not implement http.Hijacker")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		w.hijacked = true
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// callerSlot is filled in by the auth middleware so the request logger,
// which runs outside it, can name the caller.
type callerSlot struct {
	mu        sync.Mutex
	principal domain.Principal
	set       bool
}

type callerSlotKey struct{}

// RecordCaller notes the authenticated principal for the request log line.
// Handlers that authenticate on their own call it too.
func RecordCaller(ctx context.Context, p domain.Principal) {
	slot, ok := ctx.Value(callerSlotKey{}).(*callerSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.principal, slot.set = p, true
	slot.mu.Unlock()
}

func (s *callerSlot) get() (domain.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.set
}

// RequestLogger logs one line per request with the caller and matched route.
// Probe and scrape paths log at debug; realtime connections log when they end.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			slot := &callerSlot{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), callerSlotKey{}, slot)))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", rec.written,
				"client_ip", getClientIP(r),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
				}
			}
			if p, ok := slot.get(); ok {
				attrs = append(attrs, "user_id", p.ID, "role", string(p.Role))
			}
			if rec.hijacked {
				attrs = append(attrs, "realtime", true)
			}

			ctx := r.Context()
			switch {
			case rec.status >= 500:
				logger.ErrorContext(ctx, "http request", attrs...)
			case rec.status >= 400:
				logger.WarnContext(ctx, "http request", attrs...)
			case isQuietPath(r.URL.Path):
				logger.DebugContext(ctx, "http request", attrs...)
			default:
				logger.InfoContext(ctx, "http request", attrs...)
			}
		})
	}
}

func isQuietPath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health")
}

// RecoveryLogger turns a handler panic into a 500 and logs its stack.
func RecoveryLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logging.LogPanic(logging.LoggerFromContext(r.Context(), logger).With(
						"method", r.Method,
						"path", r.URL.Path,
					), v)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"Internal server error","code":"INTERNAL_ERROR"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

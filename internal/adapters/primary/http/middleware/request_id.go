package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Browser websocket clients cannot set headers, so the upgrade request may
// carry its id as a query parameter instead.
const requestIDParam = "request_id"

const maxRequestIDLen = 128

// RequestID tags each request with an id, reusing a well-formed incoming
// one, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = r.URL.Query().Get(requestIDParam)
		}
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// validRequestID accepts short ids made of characters safe to log verbatim.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// GetRequestID returns the request id stored in ctx.
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}

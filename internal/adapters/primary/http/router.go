package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http/middleware"
	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

// RouterConfig collects the handlers and middleware of the HTTP surface.
type RouterConfig struct {
	TokenManager *auth.TokenManager
	Logger       *slog.Logger

	AllowedOrigins []string

	// Rate limiters are optional.
	APILimiter       *mw.RateLimiter
	HandshakeLimiter *mw.RateLimiter

	Health    *HealthHandler
	WebSocket *WebSocketHandler
	Events    *EventsHandler
	Payments  *PaymentsHandler
	Realtime  *RealtimeHandler

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", cfg.Health.HandleHealth)
	r.Get("/health/live", cfg.Health.HandleLiveness)
	r.Get("/health/ready", cfg.Health.HandleReadiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Group(func(r chi.Router) {
			if cfg.HandshakeLimiter != nil {
				r.Use(cfg.HandshakeLimiter.Middleware)
			}
			r.Get("/ws", cfg.WebSocket.ServeHTTP)
		})

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
				ExposedHeaders:   []string{mw.RequestIDHeader},
				AllowCredentials: true,
				MaxAge:           300,
			}))
			r.Use(mw.JWTMiddleware(cfg.TokenManager))
			if cfg.APILimiter != nil {
				r.Use(cfg.APILimiter.Middleware)
			}

			r.Route("/realtime", cfg.Realtime.RegisterRoutes)
			r.Route("/push", cfg.Realtime.RegisterPushRoutes)

			// Server-to-server publishing
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(domain.RoleServer))
				r.Route("/events", cfg.Events.RegisterRoutes)
				r.Route("/payments", cfg.Payments.RegisterRoutes)
			})
		})
	})

	return r
}

// allowedOrigins maps bare hosts from configuration to origin patterns.
func allowedOrigins(hosts []string) []string {
	if len(hosts) == 0 {
		return []string{"http://*", "https://*"}
	}
	out := make([]string, 0, len(hosts)*2)
	for _, h := range hosts {
		out = append(out, "https://"+h, "http://"+h)
	}
	return out
}

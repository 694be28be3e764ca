package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http/middleware"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// HubStats reports local fan-out state.
type HubStats interface {
	ClientCount() int
	RoomCount() int
}

// ConnectionTotal reports the global connected-user count.
type ConnectionTotal interface {
	Total(ctx context.Context) (int64, error)
}

// ChannelInfo describes a channel the caller may subscribe to.
type ChannelInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// StatsResponse is the body of GET /realtime/stats.
type StatsResponse struct {
	ConnectedUsers int64  `json:"connectedUsers"`
	LocalClients   int    `json:"localClients"`
	OpenRooms      int    `json:"openRooms"`
	InstanceID     string `json:"instanceId"`
}

// RealtimeHandler serves channel discovery, stats and test pushes.
type RealtimeHandler struct {
	router       ports.ChannelRouter
	publisher    ports.Publisher
	hub          HubStats
	total        ConnectionTotal
	instanceID   string
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(
	router ports.ChannelRouter,
	publisher ports.Publisher,
	hub HubStats,
	total ConnectionTotal,
	instanceID string,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		router:       router,
		publisher:    publisher,
		hub:          hub,
		total:        total,
		instanceID:   instanceID,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "realtime"),
	}
}

// RegisterRoutes registers the /realtime routes.
func (h *RealtimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/channels", h.HandleChannels)
	r.With(mw.RequireRole(domain.RoleAdmin)).Get("/stats", h.HandleStats)
}

// RegisterPushRoutes registers the /push routes.
func (h *RealtimeHandler) RegisterPushRoutes(r chi.Router) {
	r.Post("/test", h.HandleTestPush)
}

// HandleChannels handles GET /realtime/channels.
func (h *RealtimeHandler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	channels := h.router.SubscribableChannels(principal)
	infos := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		infos = append(infos, ChannelInfo{Name: ch.Name(), Kind: string(ch.Kind())})
	}

	WriteList(w, infos)
}

// HandleStats handles GET /realtime/stats.
func (h *RealtimeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.total.Total(r.Context())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, StatsResponse{
		ConnectedUsers: total,
		LocalClients:   h.hub.ClientCount(),
		OpenRooms:      h.hub.RoomCount(),
		InstanceID:     h.instanceID,
	})
}

// HandleTestPush handles POST /push/test. It notifies the caller only.
func (h *RealtimeHandler) HandleTestPush(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	env := domain.NewEnvelope(domain.EventUserTestPush,
		domain.WithMessage("Push notifications are working"),
		domain.WithLink("/settings"),
	)
	res, err := h.publisher.Emit(r.Context(), env, ports.MutationContext{OwnerID: principal.ID})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "test push requested", "published", res.Published)
	WriteAccepted(w, toEmitResponse(res))
}

func (h *RealtimeHandler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := mw.PrincipalFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return domain.Principal{}, false
	}
	return principal, true
}

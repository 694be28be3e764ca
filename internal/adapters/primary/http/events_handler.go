package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/validation"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	Type             string   `json:"type"`
	Message          string   `json:"message,omitempty"`
	Link             string   `json:"link,omitempty"`
	NotificationKind string   `json:"notificationKind,omitempty"`
	SkipNotify       *bool    `json:"skipNotify,omitempty"`
	OwnerID          string   `json:"ownerId,omitempty"`
	UserIDs          []string `json:"userIds,omitempty"`
}

// EmitResponse reports where an event was published.
type EmitResponse struct {
	Channels  []string `json:"channels"`
	Published int      `json:"published"`
}

func toEmitResponse(res ports.EmitResult) EmitResponse {
	names := make([]string, 0, len(res.Channels))
	for _, ch := range res.Channels {
		names = append(names, ch.Name())
	}
	return EmitResponse{Channels: names, Published: res.Published}
}

// EventsHandler is the publish boundary used by the mutation layer.
type EventsHandler struct {
	publisher    ports.Publisher
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(publisher ports.Publisher, errorHandler *ErrorHandler, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		publisher:    publisher,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "events"),
	}
}

// RegisterRoutes registers the /events routes.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandlePublish)
}

// HandlePublish handles POST /events.
func (h *EventsHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[PublishEventRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	v := validation.NewValidator()
	v.Required("type", req.Type).
		EventType("type", req.Type).
		MaxLength("message", req.Message, 500).
		Link("link", req.Link).
		MaxLength("link", req.Link, 500).
		NotificationKind("notificationKind", req.NotificationKind).
		UserID("ownerId", req.OwnerID).
		UserIDs("userIds", req.UserIDs)
	if err := v.Err(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	opts := []domain.EnvelopeOption{
		domain.WithMessage(req.Message),
		domain.WithLink(req.Link),
	}
	if req.NotificationKind != "" {
		opts = append(opts, domain.WithKind(domain.NotificationKind(req.NotificationKind)))
	}
	if req.SkipNotify != nil {
		opts = append(opts, domain.WithSkipNotify(*req.SkipNotify))
	}
	env := domain.NewEnvelope(domain.EventType(req.Type), opts...)

	res, err := h.publisher.Emit(r.Context(), env, ports.MutationContext{
		OwnerID: req.OwnerID,
		UserIDs: req.UserIDs,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, toEmitResponse(res))
}

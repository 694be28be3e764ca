package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/validation"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// DepositSettler publishes settled payments.
type DepositSettler interface {
	Settle(ctx context.Context, s domain.DepositSettlement) (ports.EmitResult, error)
}

// SettlementRequest is the body of POST /payments/settled.
type SettlementRequest struct {
	UserID    string `json:"userId"`
	DepositID string `json:"depositId"`
	Status    string `json:"status"`
	Amount    *int64 `json:"amount,omitempty"`
}

// PaymentsHandler receives payment provider callbacks relayed by the payment layer.
type PaymentsHandler struct {
	settler      DepositSettler
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewPaymentsHandler creates a new PaymentsHandler.
func NewPaymentsHandler(settler DepositSettler, errorHandler *ErrorHandler, logger *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		settler:      settler,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "payments"),
	}
}

// RegisterRoutes registers the /payments routes.
func (h *PaymentsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/settled", h.HandleSettled)
}

// HandleSettled handles POST /payments/settled.
func (h *PaymentsHandler) HandleSettled(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[SettlementRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	statuses := make([]string, 0, len(domain.DepositStatuses))
	for _, s := range domain.DepositStatuses {
		statuses = append(statuses, string(s))
	}

	v := validation.NewValidator()
	v.Required("userId", req.UserID).
		UserID("userId", req.UserID).
		Required("depositId", req.DepositID).
		MaxLength("depositId", req.DepositID, 64).
		Required("status", req.Status).
		OneOf("status", req.Status, statuses).
		Custom("amount", req.Amount == nil || *req.Amount >= 0, "Must not be negative")
	if err := v.Err(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	res, err := h.settler.Settle(r.Context(), domain.DepositSettlement{
		UserID:    req.UserID,
		DepositID: req.DepositID,
		Status:    domain.DepositStatus(req.Status),
		Amount:    req.Amount,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, toEmitResponse(res))
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/billing"
)

type SubscriptionHandler struct {
	billing *billing.Service
	logger  *slog.Logger
}

func NewSubscriptionHandler(billingService *billing.Service, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{billing: billingService, logger: logger}
}

func (h *SubscriptionHandler) run(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*billing.Snapshot, error)) {
	snap, err := op(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.billing.Status)
}

func (h *SubscriptionHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.billing.StartTrial)
}

func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.billing.Upgrade)
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.billing.Cancel)
}

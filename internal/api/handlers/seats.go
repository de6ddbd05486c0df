package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/billing"
)

type SeatHandler struct {
	billing *billing.Service
	logger  *slog.Logger
}

func NewSeatHandler(billingService *billing.Service, logger *slog.Logger) *SeatHandler {
	return &SeatHandler{billing: billingService, logger: logger}
}

func (h *SeatHandler) change(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, int) (billing.Seats, error)) {
	var req dto.SeatCountRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	seats, err := op(r.Context(), middleware.GetUserID(r.Context()), req.Count)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, seats)
}

func (h *SeatHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.billing.PurchaseSeats)
}

func (h *SeatHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.billing.AddSeats)
}

func (h *SeatHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.billing.RemoveSeats)
}

func (h *SeatHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.billing.SeatInfo(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

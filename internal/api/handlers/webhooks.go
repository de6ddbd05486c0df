package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hugh/dealdesk/internal/billing"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

type WebhookHandler struct {
	billing *billing.Service
	secret  string
	logger  *slog.Logger
}

func NewWebhookHandler(billingService *billing.Service, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{billing: billingService, secret: secret, logger: logger}
}

type WebhookResponse struct {
	Received  bool `json:"received"`
	Processed bool `json:"processed"`
}

func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if !billing.VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", "ip", r.RemoteAddr)
		respondError(w, r, h.logger, billing.ErrInvalidSignature)
		return
	}

	var evt billing.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		respondError(w, r, h.logger, billing.ErrInvalidEvent)
		return
	}

	processed, err := h.billing.HandleEvent(r.Context(), evt, body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Processed: processed})
}

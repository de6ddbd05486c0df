package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/notifications"
)

type NotificationHandler struct {
	notifications *notifications.Service
	logger        *slog.Logger
}

func NewNotificationHandler(notificationService *notifications.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notificationService, logger: logger}
}

type NotificationListResponse struct {
	dto.PaginatedResponse
	Unread int64 `json:"unread"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	p := pagination(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, total, err := h.notifications.List(r.Context(), userID, unreadOnly, p.Offset(), p.PerPage)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	unread, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, NotificationListResponse{
		PaginatedResponse: dto.NewPaginatedResponse(items, total, p),
		Unread:            unread,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Notification marked as read"})
}

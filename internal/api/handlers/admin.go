package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/tasks"
)

// AdminPINHeader carries the second factor for destructive admin actions.
const AdminPINHeader = "X-Admin-PIN"

type AdminHandler struct {
	admin    *admin.Service
	settings *admin.SettingsService
	pin      *admin.PINVerifier
	queue    *asynq.Client
	logger   *slog.Logger
}

func NewAdminHandler(adminService *admin.Service, settings *admin.SettingsService, pin *admin.PINVerifier, queue *asynq.Client, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: adminService, settings: settings, pin: pin, queue: queue, logger: logger}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p := pagination(r)
	q := r.URL.Query()

	users, total, err := h.admin.ListUsers(r.Context(), admin.UserFilter{
		Status:        models.SubscriptionStatus(q.Get("status")),
		AccountStatus: models.AccountStatus(q.Get("account_status")),
		Search:        q.Get("search"),
		AdminsOnly:    q.Get("admins") == "true",
		Offset:        p.Offset(),
		Limit:         p.PerPage,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	out := make([]dto.UserDTO, len(users))
	for i := range users {
		out[i] = dto.NewUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(out, total, p))
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.SetAdminRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	user, err := h.admin.SetAdmin(r.Context(), middleware.GetUserID(r.Context()), userID, *req.IsAdmin)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	user.IsAdmin = *req.IsAdmin
	writeJSON(w, http.StatusOK, dto.NewUserDTO(user))
}

func (h *AdminHandler) GrantSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.GrantSubscriptionRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	snap, err := h.admin.GrantSubscription(r.Context(), middleware.GetUserID(r.Context()), userID, req.Status)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req admin.SettingsUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, err := h.settings.Update(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// DeleteUser purges an account. Requires the admin PIN header.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.pin.Verify(r.Context(), r.Header.Get(AdminPINHeader)); err != nil {
		h.logger.Warn("admin PIN rejected", "actor_id", middleware.GetUserID(r.Context()), "target_id", userID)
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.admin.PurgeUser(r.Context(), middleware.GetUserID(r.Context()), userID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "User deleted"})
}

type SweepResponse struct {
	TaskIDs []string `json:"task_ids"`
}

// RunSweeps queues the expiry sweeps outside their cron schedule.
func (h *AdminHandler) RunSweeps(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Background queue unavailable", nil)
		return
	}

	ids, err := tasks.EnqueueSweeps(r.Context(), h.queue, tasks.SweepPayload{
		RequestedBy: middleware.GetUserEmail(r.Context()),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to enqueue sweeps", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to queue sweeps", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, SweepResponse{TaskIDs: ids})
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/notifications"
	"github.com/hugh/dealdesk/internal/team"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Details: details})
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	return true
}

func validate(w http.ResponseWriter, errs map[string]string) bool {
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", errs)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) dto.PaginationParams {
	p := dto.PaginationParams{}
	p.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	p.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	p.Normalize()
	return p
}

// respondError maps domain errors to HTTP responses. Anything unrecognised
// is logged and reported as a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		seatLimit    *billing.SeatLimitError
		insufficient *billing.InsufficientSeatsError
		freeLimit    *analysis.FreeLimitError
		inputErr     *analysis.ValidationError
		settingsErr  *admin.SettingsError
	)

	switch {
	case errors.As(err, &seatLimit):
		writeError(w, http.StatusBadRequest, "Seat limit exceeded", map[string]string{
			"current":   strconv.Itoa(seatLimit.Current),
			"requested": strconv.Itoa(seatLimit.Requested),
			"max":       strconv.Itoa(seatLimit.Max),
		})
	case errors.As(err, &insufficient):
		writeError(w, http.StatusBadRequest, "Insufficient available seats", map[string]string{
			"requested": strconv.Itoa(insufficient.Requested),
			"available": strconv.Itoa(insufficient.Available),
		})
	case errors.As(err, &freeLimit):
		writeError(w, http.StatusForbidden, err.Error(), map[string]string{
			"limit": strconv.Itoa(freeLimit.Limit),
		})
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, "Validation failed", inputErr.Fields)
	case errors.As(err, &settingsErr):
		writeError(w, http.StatusBadRequest, "Validation failed", settingsErr.Fields)

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, billing.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, err.Error(), nil)

	case errors.Is(err, auth.ErrAccountPendingClose),
		errors.Is(err, billing.ErrPremiumRequired),
		errors.Is(err, analysis.ErrFullAccessRequired),
		errors.Is(err, admin.ErrInvalidPIN):
		writeError(w, http.StatusForbidden, err.Error(), nil)

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, billing.ErrUserNotFound),
		errors.Is(err, admin.ErrUserNotFound),
		errors.Is(err, team.ErrInvitationNotFound),
		errors.Is(err, team.ErrMemberNotFound),
		errors.Is(err, analysis.ErrAnalysisNotFound),
		errors.Is(err, notifications.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)

	case errors.Is(err, auth.ErrUserExists),
		errors.Is(err, billing.ErrSeatsAlreadyPurchased),
		errors.Is(err, billing.ErrConcurrentUpdate),
		errors.Is(err, billing.ErrAlreadySubscribed),
		errors.Is(err, billing.ErrAlreadyCancelled),
		errors.Is(err, team.ErrDuplicateInvitation),
		errors.Is(err, team.ErrAlreadyMember),
		errors.Is(err, team.ErrInvalidTransition),
		errors.Is(err, team.ErrCancelPremiumFirst):
		writeError(w, http.StatusConflict, err.Error(), nil)

	case errors.Is(err, billing.ErrInvalidSeatCount),
		errors.Is(err, billing.ErrSeatLimitExceeded),
		errors.Is(err, billing.ErrSeatsInUse),
		errors.Is(err, billing.ErrNoAvailableSeats),
		errors.Is(err, billing.ErrNoSeatsInUse),
		errors.Is(err, billing.ErrTrialAlreadyUsed),
		errors.Is(err, billing.ErrTrialWindowClosed),
		errors.Is(err, billing.ErrNotSubscribed),
		errors.Is(err, billing.ErrInvalidEvent),
		errors.Is(err, team.ErrCannotInviteSelf),
		errors.Is(err, team.ErrInvitationExpired),
		errors.Is(err, team.ErrInvalidEmail),
		errors.Is(err, admin.ErrActingOnSelf),
		errors.Is(err, admin.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error(), nil)

	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

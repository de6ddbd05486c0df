package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/billing"
)

type AuthHandler struct {
	authService    *auth.Service
	billingService *billing.Service
	secureCookies  bool
	cookieMaxAge   int
	logger         *slog.Logger
}

func NewAuthHandler(authService *auth.Service, billingService *billing.Service, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		billingService: billingService,
		secureCookies:  secureCookies,
		cookieMaxAge:   86400,
		logger:         logger,
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token, h.cookieMaxAge)
	writeJSON(w, http.StatusCreated, dto.AuthResponse{Token: resp.Token, User: dto.NewUserDTO(resp.User)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token, h.cookieMaxAge)
	writeJSON(w, http.StatusOK, dto.AuthResponse{Token: resp.Token, User: dto.NewUserDTO(resp.User)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

type MeResponse struct {
	User         dto.UserDTO       `json:"user"`
	Subscription *billing.Snapshot `json:"subscription"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	snap, err := h.billingService.Status(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{User: dto.NewUserDTO(user), Subscription: snap})
}

// DeleteAccount marks the caller's account for deletion and stops renewal.
// Paid access runs to the end of the current period.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if _, err := h.authService.RequestDeletion(r.Context(), userID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	_, err := h.billingService.Cancel(r.Context(), userID)
	if err != nil && !errors.Is(err, billing.ErrNotSubscribed) && !errors.Is(err, billing.ErrAlreadyCancelled) {
		respondError(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Account scheduled for deletion"})
}

package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/api/validation"
	"github.com/hugh/dealdesk/internal/database/models"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if len(r.Name) > 100 {
		errors["name"] = "Name must be at most 100 characters"
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID                 uuid.UUID                 `json:"id"`
	Email              string                    `json:"email"`
	Name               string                    `json:"name"`
	IsAdmin            bool                      `json:"is_admin"`
	AccountStatus      models.AccountStatus      `json:"account_status"`
	SubscriptionStatus models.SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time                `json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *time.Time                `json:"subscription_ends_at,omitempty"`
	CancelAtPeriodEnd  bool                      `json:"cancel_at_period_end"`
	CreatedAt          time.Time                 `json:"created_at"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		IsAdmin:            u.IsAdmin,
		AccountStatus:      u.AccountStatus,
		SubscriptionStatus: u.SubscriptionStatus,
		TrialEndsAt:        u.TrialEndsAt,
		SubscriptionEndsAt: u.SubscriptionEndsAt,
		CancelAtPeriodEnd:  u.CancelAtPeriodEnd,
		CreatedAt:          u.CreatedAt,
	}
}

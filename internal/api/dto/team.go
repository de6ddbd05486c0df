package dto

import (
	"strings"

	"github.com/hugh/dealdesk/internal/api/validation"
)

type InviteRequest struct {
	Email string `json:"email"`
}

func (r InviteRequest) Validate() map[string]string {
	errors := make(map[string]string)
	email := strings.TrimSpace(r.Email)
	if email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(email) {
		errors["email"] = "Invalid email format"
	}
	return errors
}

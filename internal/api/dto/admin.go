package dto

import "github.com/hugh/dealdesk/internal/database/models"

type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

func (r SetAdminRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.IsAdmin == nil {
		errors["is_admin"] = "is_admin is required"
	}
	return errors
}

type GrantSubscriptionRequest struct {
	Status models.SubscriptionStatus `json:"status"`
}

func (r GrantSubscriptionRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !r.Status.Valid() {
		errors["status"] = "Must be one of: free, trial, premium, enterprise"
	}
	return errors
}

package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionFree       SubscriptionStatus = "free"
	SubscriptionTrial      SubscriptionStatus = "trial"
	SubscriptionPremium    SubscriptionStatus = "premium"
	SubscriptionEnterprise SubscriptionStatus = "enterprise"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionFree, SubscriptionTrial, SubscriptionPremium, SubscriptionEnterprise:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive          AccountStatus = "active"
	AccountPendingDeletion AccountStatus = "pending_deletion"
)

type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`
	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`

	AccountStatus       AccountStatus `gorm:"not null;default:'active'" json:"account_status"`
	DeletionRequestedAt *time.Time    `json:"deletion_requested_at,omitempty"`

	// Subscription
	SubscriptionStatus SubscriptionStatus `gorm:"not null;default:'free';index" json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	HasUsedTrial       bool               `gorm:"default:false" json:"has_used_trial"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at,omitempty"`
	CancelAtPeriodEnd  bool               `gorm:"default:false" json:"cancel_at_period_end"`

	// Seat pool for the user's team workspace; purchased = used + available.
	PurchasedSeats int `gorm:"not null;default:0" json:"purchased_seats"`
	UsedSeats      int `gorm:"not null;default:0" json:"used_seats"`
	AvailableSeats int `gorm:"not null;default:0" json:"available_seats"`
}

func (User) TableName() string {
	return "users"
}

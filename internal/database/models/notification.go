package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationInvitationReceived NotificationType = "invitation_received"
	NotificationInvitationAccepted NotificationType = "invitation_accepted"
	NotificationInvitationDeclined NotificationType = "invitation_declined"
	NotificationInvitationRescind  NotificationType = "invitation_rescinded"
	NotificationMemberRemoved      NotificationType = "member_removed"
	NotificationMemberLeft         NotificationType = "member_left"
	NotificationSubscription       NotificationType = "subscription"
)

type Notification struct {
	Base
	UserID  uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	Type    NotificationType `gorm:"not null" json:"type"`
	Message string           `gorm:"not null" json:"message"`
	ReadAt  *time.Time       `json:"read_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

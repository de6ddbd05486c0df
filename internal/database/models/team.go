package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending              InvitationStatus = "pending"
	InvitationPendingSignup        InvitationStatus = "pending_signup"
	InvitationPendingPremiumCancel InvitationStatus = "pending_premium_cancel"
	InvitationAccepted             InvitationStatus = "accepted"
	InvitationDeclined             InvitationStatus = "declined"
	InvitationExpired              InvitationStatus = "expired"
	InvitationRescinded            InvitationStatus = "rescinded"
)

type WorkspaceInvitation struct {
	Base
	OwnerID      uuid.UUID        `gorm:"type:uuid;index;not null" json:"owner_id"`
	InvitedEmail string           `gorm:"index;not null" json:"invited_email"`
	InviteeID    *uuid.UUID       `gorm:"type:uuid;index" json:"invitee_id,omitempty"`
	Status       InvitationStatus `gorm:"not null;index;default:'pending'" json:"status"`
	Token        string           `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt    time.Time        `gorm:"index" json:"expires_at"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`

	// False when the owner was an admin at invite time; nothing to release later.
	SeatReserved bool `gorm:"default:false" json:"seat_reserved"`

	Owner *User `gorm:"foreignKey:OwnerID" json:"-"`
}

func (WorkspaceInvitation) TableName() string {
	return "workspace_invitations"
}

type WorkspaceTeamMember struct {
	Base
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_team_owner_member" json:"owner_id"`
	MemberID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_team_owner_member;index" json:"member_id"`
	InvitationID uuid.UUID `gorm:"type:uuid" json:"invitation_id"`
	JoinedAt     time.Time `json:"joined_at"`
	SeatReserved bool      `gorm:"default:false" json:"seat_reserved"`

	Owner  *User `gorm:"foreignKey:OwnerID" json:"-"`
	Member *User `gorm:"foreignKey:MemberID" json:"-"`
}

func (WorkspaceTeamMember) TableName() string {
	return "workspace_team_members"
}

// OpenInvitationStatuses are the non-terminal states; each may hold a seat.
var OpenInvitationStatuses = []InvitationStatus{
	InvitationPending,
	InvitationPendingSignup,
	InvitationPendingPremiumCancel,
}

func (i *WorkspaceInvitation) IsOpen() bool {
	for _, s := range OpenInvitationStatuses {
		if i.Status == s {
			return true
		}
	}
	return false
}

func (i *WorkspaceInvitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

package team

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
)

// ListInvitations returns every invitation the owner has sent, newest first.
func (s *Service) ListInvitations(ctx context.Context, ownerID uuid.UUID) ([]models.WorkspaceInvitation, error) {
	var invs []models.WorkspaceInvitation
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

// ListReceived returns the invitations still awaiting the user's answer.
func (s *Service) ListReceived(ctx context.Context, userID uuid.UUID) ([]models.WorkspaceInvitation, error) {
	var invs []models.WorkspaceInvitation
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("invitee_id = ? AND status IN ?", userID, []models.InvitationStatus{
			models.InvitationPending,
			models.InvitationPendingPremiumCancel,
		}).
		Where("expires_at > ?", s.clock.Now()).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

func (s *Service) ListMembers(ctx context.Context, ownerID uuid.UUID) ([]models.WorkspaceTeamMember, error) {
	var members []models.WorkspaceTeamMember
	err := s.db.WithContext(ctx).
		Preload("Member").
		Where("owner_id = ?", ownerID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// ListTeams returns the workspaces the user belongs to as a member.
func (s *Service) ListTeams(ctx context.Context, memberID uuid.UUID) ([]models.WorkspaceTeamMember, error) {
	var teams []models.WorkspaceTeamMember
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("member_id = ?", memberID).
		Order("joined_at ASC").
		Find(&teams).Error
	return teams, err
}

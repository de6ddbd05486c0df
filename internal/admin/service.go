package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/team"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrActingOnSelf  = errors.New("admins cannot perform this action on their own account")
	ErrInvalidStatus = errors.New("invalid subscription status")
)

type UserFilter struct {
	Status        models.SubscriptionStatus
	AccountStatus models.AccountStatus
	Search        string
	AdminsOnly    bool
	Offset        int
	Limit         int
}

type Stats struct {
	TotalUsers      int64                               `json:"total_users"`
	Admins          int64                               `json:"admins"`
	PendingDeletion int64                               `json:"pending_deletion"`
	BySubscription  map[models.SubscriptionStatus]int64 `json:"by_subscription"`
	Analyses        int64                               `json:"analyses"`
	TeamMemberships int64                               `json:"team_memberships"`
	OpenInvitations int64                               `json:"open_invitations"`
	PurchasedSeats  int64                               `json:"purchased_seats"`
	UsedSeats       int64                               `json:"used_seats"`
}

type Service struct {
	db      *gorm.DB
	billing *billing.Service
	team    *team.Service
	checker *Checker
	logger  *slog.Logger
}

func NewService(db *gorm.DB, billingService *billing.Service, teamService *team.Service, checker *Checker, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		billing: billingService,
		team:    teamService,
		checker: checker,
		logger:  logger,
	}
}

func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if f.Status != "" {
		query = query.Where("subscription_status = ?", f.Status)
	}
	if f.AccountStatus != "" {
		query = query.Where("account_status = ?", f.AccountStatus)
	}
	if f.AdminsOnly {
		query = query.Where("is_admin = ?", true)
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{BySubscription: make(map[models.SubscriptionStatus]int64)}

	var rows []struct {
		Status models.SubscriptionStatus
		Count  int64
	}
	if err := db.Model(&models.User{}).
		Select("subscription_status AS status, COUNT(*) AS count").
		Group("subscription_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.BySubscription[r.Status] = r.Count
		stats.TotalUsers += r.Count
	}

	var seats struct {
		Purchased int64
		Used      int64
	}
	if err := db.Model(&models.User{}).
		Select("COALESCE(SUM(purchased_seats), 0) AS purchased, COALESCE(SUM(used_seats), 0) AS used").
		Scan(&seats).Error; err != nil {
		return nil, err
	}
	stats.PurchasedSeats = seats.Purchased
	stats.UsedSeats = seats.Used

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.Admins, db.Model(&models.User{}).Where("is_admin = ?", true)},
		{&stats.PendingDeletion, db.Model(&models.User{}).Where("account_status = ?", models.AccountPendingDeletion)},
		{&stats.Analyses, db.Model(&models.Analysis{})},
		{&stats.TeamMemberships, db.Model(&models.WorkspaceTeamMember{})},
		{&stats.OpenInvitations, db.Model(&models.WorkspaceInvitation{}).Where("status IN ?", models.OpenInvitationStatuses)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetAdmin grants or revokes the admin flag. Admins cannot revoke their own.
func (s *Service) SetAdmin(ctx context.Context, actorID, userID uuid.UUID, isAdmin bool) (*models.User, error) {
	if actorID == userID && !isAdmin {
		return nil, ErrActingOnSelf
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_admin", isAdmin).Error; err != nil {
		return nil, err
	}
	s.checker.Invalidate(userID)

	s.logger.Info("admin flag changed", "actor_id", actorID, "user_id", userID, "is_admin", isAdmin)
	return user, nil
}

func (s *Service) GrantSubscription(ctx context.Context, actorID, userID uuid.UUID, status models.SubscriptionStatus) (*billing.Snapshot, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	snap, err := s.billing.Grant(ctx, userID, status)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Info("subscription granted", "actor_id", actorID, "user_id", userID, "status", status)
	return snap, nil
}

// PurgeUser permanently removes a user and everything they own. Team
// memberships are ended first so owners get their seats back.
func (s *Service) PurgeUser(ctx context.Context, actorID, userID uuid.UUID) error {
	if actorID == userID {
		return ErrActingOnSelf
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if err := s.team.DetachUser(tx, userID); err != nil {
			return fmt.Errorf("detaching team: %w", err)
		}

		owned := []interface{}{
			&models.ReportExport{},
			&models.Analysis{},
			&models.Notification{},
		}
		for _, model := range owned {
			if err := tx.Unscoped().Where("user_id = ?", userID).Delete(model).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.PaymentEvent{}).Where("user_id = ?", userID).Update("user_id", nil).Error; err != nil {
			return err
		}

		return tx.Unscoped().Delete(&user).Error
	})
	if err != nil {
		return err
	}

	s.checker.Invalidate(userID)
	s.logger.Warn("user purged", "actor_id", actorID, "user_id", userID)
	return nil
}

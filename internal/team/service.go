package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/notifications"
	"github.com/hugh/dealdesk/pkg/crypto"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

// DefaultInvitationExpiry applies when no setting overrides it.
const DefaultInvitationExpiry = 7 * 24 * time.Hour

type ExpirySource interface {
	InvitationExpiry(ctx context.Context) time.Duration
}

type StaticExpiry time.Duration

func (e StaticExpiry) InvitationExpiry(context.Context) time.Duration { return time.Duration(e) }

type Service struct {
	db      *gorm.DB
	billing *billing.Service
	expiry  ExpirySource
	clock   util.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(db *gorm.DB, billingService *billing.Service, expiry ExpirySource, clock util.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = util.SystemClock()
	}
	if expiry == nil {
		expiry = StaticExpiry(DefaultInvitationExpiry)
	}
	return &Service{
		db:      db,
		billing: billingService,
		expiry:  expiry,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func findUserByEmail(tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := tx.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func loadInvitation(tx *gorm.DB, id uuid.UUID) (*models.WorkspaceInvitation, error) {
	var inv models.WorkspaceInvitation
	if err := tx.First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func isMember(tx *gorm.DB, ownerID, memberID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.WorkspaceTeamMember{}).
		Where("owner_id = ? AND member_id = ?", ownerID, memberID).
		Count(&count).Error
	return count > 0, err
}

// transition moves inv to status, releasing its seat when the new state gives it back.
func (s *Service) transition(tx *gorm.DB, inv *models.WorkspaceInvitation, to models.InvitationStatus) error {
	from := inv.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	updates := map[string]interface{}{"status": to}
	now := s.clock.Now()
	if IsTerminal(to) {
		updates["responded_at"] = now
	}

	res := tx.Model(&models.WorkspaceInvitation{}).
		Where("id = ? AND status = ?", inv.ID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: invitation changed concurrently", ErrInvalidTransition)
	}

	if releasesSeat(to) && inv.SeatReserved {
		if err := s.billing.ReleaseSeat(tx, inv.OwnerID); err != nil {
			return fmt.Errorf("releasing seat: %w", err)
		}
	}

	inv.Status = to
	if IsTerminal(to) {
		inv.RespondedAt = &now
	}
	s.metrics.Invitation(string(to))
	return nil
}

// Invite sends a workspace invitation and reserves one of the owner's seats.
func (s *Service) Invite(ctx context.Context, ownerID uuid.UUID, email string) (*models.WorkspaceInvitation, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	expiry := s.expiry.InvitationExpiry(ctx)

	var inv models.WorkspaceInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		owner, err := s.billing.LoadNormalized(tx, ownerID)
		if err != nil {
			return err
		}
		if !owner.IsAdmin && !billing.IsActivePremium(owner, now) {
			return billing.ErrPremiumRequired
		}
		if email == normalizeEmail(owner.Email) {
			return ErrCannotInviteSelf
		}

		invitee, err := findUserByEmail(tx, email)
		if err != nil {
			return err
		}
		if invitee != nil {
			member, err := isMember(tx, ownerID, invitee.ID)
			if err != nil {
				return err
			}
			if member {
				return ErrAlreadyMember
			}
		}

		var open []models.WorkspaceInvitation
		if err := tx.Where("owner_id = ? AND invited_email = ? AND status IN ?",
			ownerID, email, models.OpenInvitationStatuses).Find(&open).Error; err != nil {
			return err
		}
		for i := range open {
			if !open[i].IsExpired(now) {
				return ErrDuplicateInvitation
			}
			if err := s.transition(tx, &open[i], models.InvitationExpired); err != nil {
				return err
			}
		}

		reserved, err := s.billing.ReserveSeat(tx, ownerID)
		if err != nil {
			return err
		}

		token, err := crypto.GenerateToken(24)
		if err != nil {
			return err
		}

		inv = models.WorkspaceInvitation{
			OwnerID:      ownerID,
			InvitedEmail: email,
			Status:       models.InvitationPendingSignup,
			Token:        token,
			ExpiresAt:    now.Add(expiry),
			SeatReserved: reserved,
		}
		if invitee != nil {
			inv.Status = models.InvitationPending
			inv.InviteeID = &invitee.ID
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}

		if invitee != nil {
			return notifications.Create(tx, invitee.ID, models.NotificationInvitationReceived,
				fmt.Sprintf("%s invited you to join their team workspace", displayName(owner)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Invitation(string(inv.Status))
	s.logger.Info("invitation created", "invitation_id", inv.ID, "owner_id", ownerID, "status", inv.Status)
	return &inv, nil
}

// ClaimSignups moves invitations sent to a new account's address from
// pending_signup to pending.
func (s *Service) ClaimSignups(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invs []models.WorkspaceInvitation
		if err := tx.Where("invited_email = ? AND status = ?",
			normalizeEmail(user.Email), models.InvitationPendingSignup).Find(&invs).Error; err != nil {
			return err
		}

		now := s.clock.Now()
		for i := range invs {
			inv := &invs[i]
			if inv.IsExpired(now) {
				if err := s.transition(tx, inv, models.InvitationExpired); err != nil {
					return err
				}
				continue
			}
			if err := s.transition(tx, inv, models.InvitationPending); err != nil {
				return err
			}
			if err := tx.Model(inv).Update("invitee_id", user.ID).Error; err != nil {
				return err
			}
			inv.InviteeID = &user.ID
			if err := notifications.Create(tx, user.ID, models.NotificationInvitationReceived,
				"You have a pending team workspace invitation"); err != nil {
				return err
			}
		}
		return nil
	})
}

// invitationFor loads an invitation addressed to userID.
func invitationFor(tx *gorm.DB, user *models.User, id uuid.UUID) (*models.WorkspaceInvitation, error) {
	inv, err := loadInvitation(tx, id)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != nil {
		if *inv.InviteeID != user.ID {
			return nil, ErrInvitationNotFound
		}
	} else if inv.InvitedEmail != normalizeEmail(user.Email) {
		return nil, ErrInvitationNotFound
	}
	return inv, nil
}

// Accept joins the owner's workspace. An invitation past its expiry is
// marked expired and its seat released before ErrInvitationExpired is
// returned. A self-paying premium invitee must cancel first; the invitation
// waits in pending_premium_cancel meanwhile.
func (s *Service) Accept(ctx context.Context, userID, invitationID uuid.UUID) (*models.WorkspaceTeamMember, error) {
	var member *models.WorkspaceTeamMember
	var outcome error

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		user, err := s.billing.LoadNormalized(tx, userID)
		if err != nil {
			return err
		}
		inv, err := invitationFor(tx, user, invitationID)
		if err != nil {
			return err
		}
		if inv.Status != models.InvitationPending && inv.Status != models.InvitationPendingPremiumCancel {
			return fmt.Errorf("%w: invitation is %s", ErrInvalidTransition, inv.Status)
		}

		if inv.IsExpired(now) {
			outcome = ErrInvitationExpired
			return s.transition(tx, inv, models.InvitationExpired)
		}

		if billing.IsActivePremium(user, now) && !user.CancelAtPeriodEnd {
			outcome = ErrCancelPremiumFirst
			if inv.Status == models.InvitationPendingPremiumCancel {
				return nil
			}
			return s.transition(tx, inv, models.InvitationPendingPremiumCancel)
		}

		already, err := isMember(tx, inv.OwnerID, user.ID)
		if err != nil {
			return err
		}
		if already {
			return ErrAlreadyMember
		}

		if err := s.transition(tx, inv, models.InvitationAccepted); err != nil {
			return err
		}

		member = &models.WorkspaceTeamMember{
			OwnerID:      inv.OwnerID,
			MemberID:     user.ID,
			InvitationID: inv.ID,
			JoinedAt:     now,
			SeatReserved: inv.SeatReserved,
		}
		if err := tx.Create(member).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"subscription_status":  models.SubscriptionEnterprise,
			"cancel_at_period_end": false,
		}).Error; err != nil {
			return err
		}
		s.metrics.Subscription(string(user.SubscriptionStatus), string(models.SubscriptionEnterprise))

		return notifications.Create(tx, inv.OwnerID, models.NotificationInvitationAccepted,
			fmt.Sprintf("%s joined your team workspace", displayName(user)))
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}

	s.logger.Info("invitation accepted", "invitation_id", invitationID, "member_id", userID)
	return member, nil
}

func (s *Service) Decline(ctx context.Context, userID, invitationID uuid.UUID) (*models.WorkspaceInvitation, error) {
	var inv *models.WorkspaceInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return billing.ErrUserNotFound
			}
			return err
		}

		var err error
		inv, err = invitationFor(tx, &user, invitationID)
		if err != nil {
			return err
		}
		if err := s.transition(tx, inv, models.InvitationDeclined); err != nil {
			return err
		}
		return notifications.Create(tx, inv.OwnerID, models.NotificationInvitationDeclined,
			fmt.Sprintf("%s declined your team invitation", displayName(&user)))
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) Rescind(ctx context.Context, ownerID, invitationID uuid.UUID) (*models.WorkspaceInvitation, error) {
	var inv *models.WorkspaceInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = loadInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.OwnerID != ownerID {
			return ErrInvitationNotFound
		}
		if err := s.transition(tx, inv, models.InvitationRescinded); err != nil {
			return err
		}
		if inv.InviteeID != nil {
			return notifications.Create(tx, *inv.InviteeID, models.NotificationInvitationRescind,
				"A team workspace invitation was withdrawn")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// endMembership deletes the membership, gives the seat back and drops the
// member to free once no team carries them.
func (s *Service) endMembership(tx *gorm.DB, ownerID, memberID uuid.UUID) error {
	var membership models.WorkspaceTeamMember
	if err := tx.Where("owner_id = ? AND member_id = ?", ownerID, memberID).First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	if err := tx.Unscoped().Delete(&membership).Error; err != nil {
		return err
	}

	if membership.SeatReserved {
		if err := s.billing.ReleaseSeat(tx, ownerID); err != nil {
			return fmt.Errorf("releasing seat: %w", err)
		}
	}

	return s.downgradeIfUnattached(tx, memberID)
}

// downgradeIfUnattached ends enterprise access once no team carries the
// member. A cancelled premium still inside its paid period goes back to
// premium until SubscriptionEndsAt; everyone else drops to free.
func (s *Service) downgradeIfUnattached(tx *gorm.DB, memberID uuid.UUID) error {
	var remaining int64
	if err := tx.Model(&models.WorkspaceTeamMember{}).Where("member_id = ?", memberID).Count(&remaining).Error; err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	var member models.User
	if err := tx.First(&member, "id = ?", memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if member.SubscriptionStatus != models.SubscriptionEnterprise {
		return nil
	}

	to := models.SubscriptionFree
	paidThrough := member.SubscriptionEndsAt != nil && member.SubscriptionEndsAt.After(s.clock.Now())
	if paidThrough {
		to = models.SubscriptionPremium
	}

	res := tx.Model(&models.User{}).
		Where("id = ? AND subscription_status = ?", memberID, models.SubscriptionEnterprise).
		Updates(map[string]interface{}{
			"subscription_status":  to,
			"cancel_at_period_end": paidThrough,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.metrics.Subscription(string(models.SubscriptionEnterprise), string(to))
	}
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, ownerID, memberID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.endMembership(tx, ownerID, memberID); err != nil {
			return err
		}
		return notifications.Create(tx, memberID, models.NotificationMemberRemoved,
			"You were removed from a team workspace")
	})
}

func (s *Service) Leave(ctx context.Context, memberID, ownerID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.endMembership(tx, ownerID, memberID); err != nil {
			return err
		}
		var member models.User
		if err := tx.First(&member, "id = ?", memberID).Error; err != nil {
			return err
		}
		return notifications.Create(tx, ownerID, models.NotificationMemberLeft,
			fmt.Sprintf("%s left your team workspace", displayName(&member)))
	})
}

// ExpireInvitations expires every open invitation past its deadline. Each
// invitation commits separately so one failure does not hold back the rest.
func (s *Service) ExpireInvitations(ctx context.Context) (int64, error) {
	var due []models.WorkspaceInvitation
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", models.OpenInvitationStatuses, s.clock.Now()).
		Find(&due).Error; err != nil {
		return 0, err
	}

	var expired int64
	var errs []error
	for i := range due {
		inv := &due[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.transition(tx, inv, models.InvitationExpired)
		})
		if err != nil {
			s.logger.Warn("failed to expire invitation", "invitation_id", inv.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		expired++
	}

	s.metrics.Swept("invitations", expired)
	return expired, errors.Join(errs...)
}

// DetachUser removes every team relationship of a user about to be purged.
func (s *Service) DetachUser(tx *gorm.DB, userID uuid.UUID) error {
	var asMember []models.WorkspaceTeamMember
	if err := tx.Where("member_id = ?", userID).Find(&asMember).Error; err != nil {
		return err
	}
	for _, m := range asMember {
		if err := s.endMembership(tx, m.OwnerID, userID); err != nil {
			return err
		}
	}

	var asOwner []models.WorkspaceTeamMember
	if err := tx.Where("owner_id = ?", userID).Find(&asOwner).Error; err != nil {
		return err
	}
	if err := tx.Unscoped().Where("owner_id = ?", userID).Delete(&models.WorkspaceTeamMember{}).Error; err != nil {
		return err
	}
	for _, m := range asOwner {
		if err := s.downgradeIfUnattached(tx, m.MemberID); err != nil {
			return err
		}
	}

	var received []models.WorkspaceInvitation
	if err := tx.Where("invitee_id = ? AND status IN ?", userID, models.OpenInvitationStatuses).
		Find(&received).Error; err != nil {
		return err
	}
	for i := range received {
		if err := s.transition(tx, &received[i], models.InvitationRescinded); err != nil {
			return err
		}
	}

	return tx.Unscoped().
		Where("owner_id = ? OR invitee_id = ?", userID, userID).
		Delete(&models.WorkspaceInvitation{}).Error
}

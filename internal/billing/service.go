package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

// Limits supplies the runtime-tunable billing parameters.
type Limits interface {
	MaxSeats(ctx context.Context) int
	BillingPeriod(ctx context.Context) BillingPeriod
}

// StaticLimits is a fixed Limits, used when no settings store is wired.
type StaticLimits struct {
	Seats  int
	Period BillingPeriod
}

func (l StaticLimits) MaxSeats(context.Context) int { return l.Seats }

func (l StaticLimits) BillingPeriod(context.Context) BillingPeriod { return l.Period }

type Service struct {
	db      *gorm.DB
	limits  Limits
	clock   util.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(db *gorm.DB, limits Limits, clock util.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Service{
		db:      db,
		limits:  limits,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func loadUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func saveSubscription(tx *gorm.DB, u *models.User) error {
	return tx.Model(u).Select(
		"subscription_status",
		"trial_ends_at",
		"has_used_trial",
		"subscription_ends_at",
		"cancel_at_period_end",
	).Updates(u).Error
}

// LoadNormalized reads a user inside tx and persists any lapsed status.
func (s *Service) LoadNormalized(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	user, err := loadUser(tx, userID)
	if err != nil {
		return nil, err
	}
	before := user.SubscriptionStatus
	if Normalize(user, s.clock.Now()) {
		if err := saveSubscription(tx, user); err != nil {
			return nil, fmt.Errorf("saving normalized status: %w", err)
		}
		s.metrics.Subscription(string(before), string(user.SubscriptionStatus))
	}
	return user, nil
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	user, err := s.LoadNormalized(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	snap := SnapshotOf(user, s.clock.Now())
	return &snap, nil
}

// update runs fn on a freshly normalized user and saves the subscription columns.
func (s *Service) update(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, u *models.User) error) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.LoadNormalized(tx, userID)
		if err != nil {
			return err
		}
		before := user.SubscriptionStatus
		if err := fn(ctx, user); err != nil {
			return err
		}
		if err := saveSubscription(tx, user); err != nil {
			return err
		}
		s.metrics.Subscription(string(before), string(user.SubscriptionStatus))
		snap = SnapshotOf(user, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Service) StartTrial(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.update(ctx, userID, func(ctx context.Context, u *models.User) error {
		now := s.clock.Now()
		switch {
		case u.SubscriptionStatus == models.SubscriptionPremium,
			u.SubscriptionStatus == models.SubscriptionEnterprise:
			return ErrAlreadySubscribed
		case u.HasUsedTrial:
			return ErrTrialAlreadyUsed
		case !TrialWindowOpen(u, now):
			return ErrTrialWindowClosed
		}
		GrantTrial(u, now)
		return nil
	})
}

// Upgrade starts a paid period. Upgrading a premium that is pending
// cancellation resumes it without touching the end date.
func (s *Service) Upgrade(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	period := s.limits.BillingPeriod(ctx)
	return s.update(ctx, userID, func(ctx context.Context, u *models.User) error {
		now := s.clock.Now()
		if IsActivePremium(u, now) {
			if !u.CancelAtPeriodEnd {
				return ErrAlreadySubscribed
			}
			u.CancelAtPeriodEnd = false
			return nil
		}

		ends := period.End(now)
		u.SubscriptionStatus = models.SubscriptionPremium
		u.SubscriptionEndsAt = &ends
		u.CancelAtPeriodEnd = false
		u.HasUsedTrial = true
		return nil
	})
}

// Cancel stops renewal. Access continues until the end of the paid period.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.update(ctx, userID, func(ctx context.Context, u *models.User) error {
		return cancel(u, s.clock.Now())
	})
}

func cancel(u *models.User, now time.Time) error {
	if !IsActivePremium(u, now) {
		return ErrNotSubscribed
	}
	if u.CancelAtPeriodEnd {
		return ErrAlreadyCancelled
	}
	if u.SubscriptionEndsAt == nil {
		u.SubscriptionStatus = models.SubscriptionFree
		return nil
	}
	u.CancelAtPeriodEnd = true
	return nil
}

// Renew extends premium by one period from the later of now and the current end.
func (s *Service) Renew(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.update(ctx, userID, s.renewer(s.limits.BillingPeriod(ctx)))
}

// renewer extends by period. The period is resolved by the caller before
// any transaction opens.
func (s *Service) renewer(period BillingPeriod) func(context.Context, *models.User) error {
	return func(_ context.Context, u *models.User) error {
		now := s.clock.Now()
		base := now
		if u.SubscriptionStatus == models.SubscriptionPremium && u.SubscriptionEndsAt != nil && u.SubscriptionEndsAt.After(now) {
			base = *u.SubscriptionEndsAt
		}
		ends := period.End(base)
		u.SubscriptionStatus = models.SubscriptionPremium
		u.SubscriptionEndsAt = &ends
		u.CancelAtPeriodEnd = false
		u.HasUsedTrial = true
		return nil
	}
}

// Expire ends a premium subscription immediately.
func (s *Service) Expire(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.update(ctx, userID, s.expire)
}

func (s *Service) expire(_ context.Context, u *models.User) error {
	if u.SubscriptionStatus != models.SubscriptionPremium {
		return nil
	}
	now := s.clock.Now()
	u.SubscriptionStatus = models.SubscriptionFree
	u.SubscriptionEndsAt = &now
	u.CancelAtPeriodEnd = false
	return nil
}

// Grant sets a subscription status directly, as an operator override.
// Premium starts a fresh period; trial starts a fresh trial window.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, status models.SubscriptionStatus) (*Snapshot, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown subscription status %q", status)
	}
	renew := s.renewer(s.limits.BillingPeriod(ctx))
	return s.update(ctx, userID, func(ctx context.Context, u *models.User) error {
		now := s.clock.Now()
		u.CancelAtPeriodEnd = false
		switch status {
		case models.SubscriptionPremium:
			return renew(ctx, u)
		case models.SubscriptionTrial:
			ends := now.Add(TrialDuration)
			u.SubscriptionStatus = models.SubscriptionTrial
			u.TrialEndsAt = &ends
			u.HasUsedTrial = true
		default:
			u.SubscriptionStatus = status
			u.SubscriptionEndsAt = nil
		}
		return nil
	})
}

// ExpireSubscriptions downgrades every lapsed trial and premium to free.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	db := s.db.WithContext(ctx)

	trials := db.Model(&models.User{}).
		Where("subscription_status = ? AND (trial_ends_at IS NULL OR trial_ends_at <= ?)", models.SubscriptionTrial, now).
		Update("subscription_status", models.SubscriptionFree)
	if trials.Error != nil {
		return 0, fmt.Errorf("expiring trials: %w", trials.Error)
	}

	premiums := db.Model(&models.User{}).
		Where("subscription_status = ? AND subscription_ends_at IS NOT NULL AND subscription_ends_at <= ?", models.SubscriptionPremium, now).
		Updates(map[string]interface{}{
			"subscription_status":  models.SubscriptionFree,
			"cancel_at_period_end": false,
		})
	if premiums.Error != nil {
		return trials.RowsAffected, fmt.Errorf("expiring subscriptions: %w", premiums.Error)
	}

	s.metrics.Swept("trials", trials.RowsAffected)
	s.metrics.Swept("subscriptions", premiums.RowsAffected)

	return trials.RowsAffected + premiums.RowsAffected, nil
}

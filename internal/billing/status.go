package billing

import (
	"math"
	"time"

	"github.com/hugh/dealdesk/internal/database/models"
)

// IsActivePremium reports whether u pays for premium and the paid period has
// not ended. A cancelled subscription stays active until its end date.
func IsActivePremium(u *models.User, now time.Time) bool {
	if u.SubscriptionStatus != models.SubscriptionPremium {
		return false
	}
	return u.SubscriptionEndsAt == nil || now.Before(*u.SubscriptionEndsAt)
}

func IsTrialActive(u *models.User, now time.Time) bool {
	return u.SubscriptionStatus == models.SubscriptionTrial &&
		u.TrialEndsAt != nil && now.Before(*u.TrialEndsAt)
}

// HasFullAccess covers every paid-equivalent state, including admins and
// team members carried by an enterprise workspace.
func HasFullAccess(u *models.User, now time.Time) bool {
	return u.IsAdmin ||
		u.SubscriptionStatus == models.SubscriptionEnterprise ||
		IsActivePremium(u, now) ||
		IsTrialActive(u, now)
}

// TrialWindowOpen reports whether a trial could still be started for u.
func TrialWindowOpen(u *models.User, now time.Time) bool {
	return !u.HasUsedTrial && now.Before(u.CreatedAt.Add(TrialDuration))
}

// GrantTrial moves u into the trial, ending TrialDuration after account creation.
func GrantTrial(u *models.User, now time.Time) {
	created := u.CreatedAt
	if created.IsZero() {
		created = now
	}
	ends := created.Add(TrialDuration)
	u.SubscriptionStatus = models.SubscriptionTrial
	u.TrialEndsAt = &ends
	u.HasUsedTrial = true
}

// Normalize downgrades lapsed trials and premiums to free. It reports
// whether u changed.
func Normalize(u *models.User, now time.Time) bool {
	switch u.SubscriptionStatus {
	case models.SubscriptionTrial:
		if u.TrialEndsAt == nil || !now.Before(*u.TrialEndsAt) {
			u.SubscriptionStatus = models.SubscriptionFree
			return true
		}
	case models.SubscriptionPremium:
		if u.SubscriptionEndsAt != nil && !now.Before(*u.SubscriptionEndsAt) {
			u.SubscriptionStatus = models.SubscriptionFree
			u.CancelAtPeriodEnd = false
			return true
		}
	}
	return false
}

type Snapshot struct {
	Status             models.SubscriptionStatus `json:"status"`
	ActivePremium      bool                      `json:"active_premium"`
	FullAccess         bool                      `json:"full_access"`
	IsAdmin            bool                      `json:"is_admin"`
	HasUsedTrial       bool                      `json:"has_used_trial"`
	TrialAvailable     bool                      `json:"trial_available"`
	TrialEndsAt        *time.Time                `json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *time.Time                `json:"subscription_ends_at,omitempty"`
	CancelAtPeriodEnd  bool                      `json:"cancel_at_period_end"`
	DaysRemaining      int                       `json:"days_remaining"`
	Seats              Seats                     `json:"seats"`
}

func SnapshotOf(u *models.User, now time.Time) Snapshot {
	snap := Snapshot{
		Status:             u.SubscriptionStatus,
		ActivePremium:      IsActivePremium(u, now),
		FullAccess:         HasFullAccess(u, now),
		IsAdmin:            u.IsAdmin,
		HasUsedTrial:       u.HasUsedTrial,
		TrialAvailable:     TrialWindowOpen(u, now),
		TrialEndsAt:        u.TrialEndsAt,
		SubscriptionEndsAt: u.SubscriptionEndsAt,
		CancelAtPeriodEnd:  u.CancelAtPeriodEnd,
		Seats:              SeatsOf(u),
	}

	switch {
	case IsTrialActive(u, now):
		snap.DaysRemaining = daysUntil(now, *u.TrialEndsAt)
	case snap.ActivePremium && u.SubscriptionEndsAt != nil:
		snap.DaysRemaining = daysUntil(now, *u.SubscriptionEndsAt)
	}

	return snap
}

func daysUntil(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

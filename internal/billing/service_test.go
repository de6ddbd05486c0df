package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/testutil"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	clock *util.FixedClock
	svc   *billing.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := testutil.Clock()
	limits := billing.StaticLimits{Seats: 10, Period: billing.DefaultBillingPeriod}
	return &fixture{
		db:    db,
		clock: clock,
		svc:   billing.NewService(db, limits, clock, nil, testutil.Logger()),
	}
}

func TestService_StartTrial(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	t.Run("within window", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithCreatedAt(f.clock.Now().Add(-time.Hour)))

		snap, err := f.svc.StartTrial(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionTrial, snap.Status)
		assert.True(t, snap.FullAccess)
		assert.True(t, snap.HasUsedTrial)

		_, err = f.svc.StartTrial(ctx, user.ID)
		assert.ErrorIs(t, err, billing.ErrTrialAlreadyUsed)
	})

	t.Run("window closed", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithCreatedAt(f.clock.Now().Add(-73*time.Hour)))

		_, err := f.svc.StartTrial(ctx, user.ID)
		assert.ErrorIs(t, err, billing.ErrTrialWindowClosed)
		assert.False(t, testutil.ReloadUser(t, f.db, user.ID).HasUsedTrial)
	})

	t.Run("already premium", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(24*time.Hour)))

		_, err := f.svc.StartTrial(ctx, user.ID)
		assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)
	})
}

func TestService_TrialLatchSurvivesExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, testutil.WithCreatedAt(f.clock.Now()))

	_, err := f.svc.StartTrial(ctx, user.ID)
	require.NoError(t, err)

	f.clock.Advance(billing.TrialDuration)

	snap, err := f.svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionFree, snap.Status)
	assert.True(t, snap.HasUsedTrial)
	assert.False(t, snap.TrialAvailable)

	reloaded := testutil.ReloadUser(t, f.db, user.ID)
	assert.Equal(t, models.SubscriptionFree, reloaded.SubscriptionStatus)
	assert.True(t, reloaded.HasUsedTrial)
}

func TestService_UpgradeCancelResume(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)

	snap, err := f.svc.Upgrade(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, snap.Status)
	require.NotNil(t, snap.SubscriptionEndsAt)
	end := *snap.SubscriptionEndsAt
	assert.True(t, end.Equal(billing.AddMonths(f.clock.Now(), 1)))

	_, err = f.svc.Upgrade(ctx, user.ID)
	assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)

	snap, err = f.svc.Cancel(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, snap.CancelAtPeriodEnd)
	assert.True(t, snap.ActivePremium, "access continues until the period ends")

	_, err = f.svc.Cancel(ctx, user.ID)
	assert.ErrorIs(t, err, billing.ErrAlreadyCancelled)

	snap, err = f.svc.Upgrade(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, snap.CancelAtPeriodEnd)
	assert.True(t, snap.SubscriptionEndsAt.Equal(end), "resuming keeps the end date")

	_, err = f.svc.Cancel(ctx, user.ID)
	require.NoError(t, err)

	f.clock.T = end
	snap, err = f.svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionFree, snap.Status)
	assert.False(t, snap.CancelAtPeriodEnd)

	_, err = f.svc.Cancel(ctx, user.ID)
	assert.ErrorIs(t, err, billing.ErrNotSubscribed)
}

func TestService_CancelWithoutEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, testutil.WithStatus(models.SubscriptionPremium))

	snap, err := f.svc.Cancel(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionFree, snap.Status)
}

func TestService_Renew(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	end := f.clock.Now().Add(5 * 24 * time.Hour)
	user := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(end))

	snap, err := f.svc.Renew(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, snap.SubscriptionEndsAt.Equal(billing.AddMonths(end, 1)))

	lapsed := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(-time.Hour)))
	snap, err = f.svc.Renew(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, snap.Status)
	assert.True(t, snap.SubscriptionEndsAt.Equal(billing.AddMonths(f.clock.Now(), 1)))
}

func TestService_ExpireSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	now := f.clock.Now()

	trial := testutil.CreateTestUser(t, f.db, func(u *models.User) {
		ends := now.Add(-time.Minute)
		u.SubscriptionStatus = models.SubscriptionTrial
		u.TrialEndsAt = &ends
		u.HasUsedTrial = true
	})
	lapsed := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(now.Add(-time.Minute)))
	active := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(now.Add(time.Hour)))
	member := testutil.CreateTestUser(t, f.db, testutil.WithStatus(models.SubscriptionEnterprise))

	n, err := f.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, models.SubscriptionFree, testutil.ReloadUser(t, f.db, trial.ID).SubscriptionStatus)
	assert.Equal(t, models.SubscriptionFree, testutil.ReloadUser(t, f.db, lapsed.ID).SubscriptionStatus)
	assert.Equal(t, models.SubscriptionPremium, testutil.ReloadUser(t, f.db, active.ID).SubscriptionStatus)
	assert.Equal(t, models.SubscriptionEnterprise, testutil.ReloadUser(t, f.db, member.ID).SubscriptionStatus)
}

func TestService_Seats(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	t.Run("purchase requires premium", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db)
		_, err := f.svc.PurchaseSeats(ctx, user.ID, 2)
		assert.ErrorIs(t, err, billing.ErrPremiumRequired)
	})

	t.Run("purchase add remove", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(time.Hour)))

		seats, err := f.svc.PurchaseSeats(ctx, user.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, billing.Seats{Purchased: 3, Available: 3}, seats)

		_, err = f.svc.PurchaseSeats(ctx, user.ID, 1)
		assert.ErrorIs(t, err, billing.ErrSeatsAlreadyPurchased)

		seats, err = f.svc.AddSeats(ctx, user.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, seats.Purchased)

		_, err = f.svc.AddSeats(ctx, user.ID, 6)
		var limit *billing.SeatLimitError
		require.True(t, errors.As(err, &limit))
		assert.Equal(t, 5, limit.Current)
		assert.Equal(t, 10, limit.Max)

		seats, err = f.svc.RemoveSeats(ctx, user.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, billing.Seats{Purchased: 1, Available: 1}, seats)

		reloaded := testutil.ReloadUser(t, f.db, user.ID)
		assert.Equal(t, seats, billing.SeatsOf(reloaded))
	})

	t.Run("remove rejects seats in use", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithSeats(5, 3))

		_, err := f.svc.RemoveSeats(ctx, user.ID, 3)
		assert.ErrorIs(t, err, billing.ErrSeatsInUse)

		seats, err := f.svc.RemoveSeats(ctx, user.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, billing.Seats{Purchased: 3, Used: 3, Available: 0}, seats)
	})

	t.Run("admin bypasses ceiling and premium", func(t *testing.T) {
		admin := testutil.CreateTestUser(t, f.db, testutil.WithAdmin())

		seats, err := f.svc.PurchaseSeats(ctx, admin.ID, 100)
		require.NoError(t, err)
		assert.Equal(t, 100, seats.Purchased)

		info, err := f.svc.SeatInfo(ctx, admin.ID)
		require.NoError(t, err)
		assert.True(t, info.Unlimited)
	})

	t.Run("reserve reads committed counts", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithSeats(2, 0))
		require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{"used_seats": 1, "available_seats": 1}).Error)

		_, err := f.svc.ReserveSeat(f.db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.Seats{Purchased: 2, Used: 2, Available: 0}, billing.SeatsOf(testutil.ReloadUser(t, f.db, user.ID)))
	})
}

func TestService_ReserveRelease(t *testing.T) {
	f := newFixture(t)

	t.Run("owner seats", func(t *testing.T) {
		owner := testutil.CreateTestUser(t, f.db, testutil.WithSeats(1, 0))

		reserved, err := f.svc.ReserveSeat(f.db, owner.ID)
		require.NoError(t, err)
		assert.True(t, reserved)

		_, err = f.svc.ReserveSeat(f.db, owner.ID)
		assert.ErrorIs(t, err, billing.ErrNoAvailableSeats)

		require.NoError(t, f.svc.ReleaseSeat(f.db, owner.ID))
		assert.Equal(t, billing.Seats{Purchased: 1, Available: 1}, billing.SeatsOf(testutil.ReloadUser(t, f.db, owner.ID)))

		require.NoError(t, f.svc.ReleaseSeat(f.db, owner.ID), "releasing an empty pool is logged, not fatal")
		assert.Equal(t, billing.Seats{Purchased: 1, Available: 1}, billing.SeatsOf(testutil.ReloadUser(t, f.db, owner.ID)))
	})

	t.Run("admin owners are untouched", func(t *testing.T) {
		admin := testutil.CreateTestUser(t, f.db, testutil.WithAdmin())

		reserved, err := f.svc.ReserveSeat(f.db, admin.ID)
		require.NoError(t, err)
		assert.False(t, reserved)

		require.NoError(t, f.svc.ReleaseSeat(f.db, admin.ID))
		assert.Equal(t, billing.Seats{}, billing.SeatsOf(testutil.ReloadUser(t, f.db, admin.ID)))
	})
}

func TestService_Grant(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, testutil.WithCreatedAt(f.clock.Now().Add(-30*24*time.Hour)))

	snap, err := f.svc.Grant(ctx, user.ID, models.SubscriptionTrial)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrial, snap.Status)
	assert.True(t, snap.FullAccess)

	snap, err = f.svc.Grant(ctx, user.ID, models.SubscriptionPremium)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, snap.Status)
	reloaded := testutil.ReloadUser(t, f.db, user.ID)
	require.NotNil(t, reloaded.SubscriptionEndsAt)
	assert.True(t, reloaded.SubscriptionEndsAt.Equal(billing.AddMonths(f.clock.Now(), 1)))

	snap, err = f.svc.Grant(ctx, user.ID, models.SubscriptionFree)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionFree, snap.Status)

	_, err = f.svc.Grant(ctx, user.ID, models.SubscriptionStatus("gold"))
	assert.Error(t, err)
}

func TestService_ReleaseAfterOwnerPromoted(t *testing.T) {
	f := newFixture(t)
	owner := testutil.CreateTestUser(t, f.db, testutil.WithSeats(2, 0))

	reserved, err := f.svc.ReserveSeat(f.db, owner.ID)
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", owner.ID).Update("is_admin", true).Error)
	require.NoError(t, f.svc.ReleaseSeat(f.db, owner.ID))

	assert.Equal(t, billing.Seats{Purchased: 2, Used: 0, Available: 2}, billing.SeatsOf(testutil.ReloadUser(t, f.db, owner.ID)))
}

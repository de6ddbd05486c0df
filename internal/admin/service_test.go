package admin

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/internal/testutil"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	clock   *util.FixedClock
	team    *team.Service
	checker *Checker
	svc     *Service
	admin   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := testutil.Clock()
	logger := testutil.Logger()

	billingService := billing.NewService(db, billing.StaticLimits{Seats: 10, Period: billing.DefaultBillingPeriod}, clock, nil, logger)
	teamService := team.NewService(db, billingService, nil, clock, nil, logger)
	checker := NewChecker(db, time.Minute, clock)

	return &fixture{
		db:      db,
		clock:   clock,
		team:    teamService,
		checker: checker,
		svc:     NewService(db, billingService, teamService, checker, logger),
		admin:   testutil.CreateTestUser(t, db, testutil.WithAdmin()),
	}
}

func TestService_ListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	testutil.CreateTestUser(t, f.db, testutil.WithEmail("alice@example.com"), testutil.WithStatus(models.SubscriptionEnterprise))
	testutil.CreateTestUser(t, f.db, testutil.WithEmail("bob@example.com"))

	users, total, err := f.svc.ListUsers(ctx, UserFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, users, 3)

	users, total, err = f.svc.ListUsers(ctx, UserFilter{Search: "ALICE", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "alice@example.com", users[0].Email)

	_, total, err = f.svc.ListUsers(ctx, UserFilter{Status: models.SubscriptionEnterprise, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = f.svc.ListUsers(ctx, UserFilter{AdminsOnly: true, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	users, total, err = f.svc.ListUsers(ctx, UserFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, users, 1)
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(time.Hour)), testutil.WithSeats(3, 1))
	testutil.CreateTestUser(t, f.db, testutil.WithStatus(models.SubscriptionEnterprise))

	stats, err := f.svc.Stats(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.Admins)
	assert.Equal(t, int64(1), stats.BySubscription[models.SubscriptionPremium])
	assert.Equal(t, int64(1), stats.BySubscription[models.SubscriptionEnterprise])
	assert.Equal(t, int64(3), stats.PurchasedSeats)
	assert.Equal(t, int64(1), stats.UsedSeats)
}

func TestService_SetAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)

	ok, err := f.checker.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.svc.SetAdmin(ctx, f.admin.ID, user.ID, true)
	require.NoError(t, err)

	ok, err = f.checker.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok, "grant must invalidate the cached answer")

	_, err = f.svc.SetAdmin(ctx, f.admin.ID, f.admin.ID, false)
	assert.ErrorIs(t, err, ErrActingOnSelf)

	_, err = f.svc.SetAdmin(ctx, f.admin.ID, uuid.New(), true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_GrantSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)

	snap, err := f.svc.GrantSubscription(ctx, f.admin.ID, user.ID, models.SubscriptionPremium)
	require.NoError(t, err)
	assert.True(t, snap.ActivePremium)

	_, err = f.svc.GrantSubscription(ctx, f.admin.ID, user.ID, "platinum")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.GrantSubscription(ctx, f.admin.ID, uuid.New(), models.SubscriptionFree)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_PurgeUser(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(30*24*time.Hour)), testutil.WithSeats(2, 0))
	member := testutil.CreateTestUser(t, f.db)

	inv, err := f.team.Invite(ctx, owner.ID, member.Email)
	require.NoError(t, err)
	_, err = f.team.Accept(ctx, member.ID, inv.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.Analysis{UserID: member.ID, Name: "deal", Units: 4}).Error)

	require.NoError(t, f.svc.PurgeUser(ctx, f.admin.ID, member.ID))

	var count int64
	require.NoError(t, f.db.Unscoped().Model(&models.User{}).Where("id = ?", member.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Unscoped().Model(&models.Analysis{}).Where("user_id = ?", member.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Unscoped().Model(&models.Notification{}).Where("user_id = ?", member.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&models.WorkspaceTeamMember{}).Where("member_id = ?", member.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, billing.Seats{Purchased: 2, Used: 0, Available: 2}, billing.SeatsOf(testutil.ReloadUser(t, f.db, owner.ID)))

	t.Run("self and unknown", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.PurgeUser(ctx, f.admin.ID, f.admin.ID), ErrActingOnSelf)
		assert.ErrorIs(t, f.svc.PurgeUser(ctx, f.admin.ID, uuid.New()), ErrUserNotFound)
	})
}

package admin

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_IsAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.Clock()
	checker := NewChecker(db, 30*time.Second, clock)
	ctx := testutil.TestContext(t)

	user := testutil.CreateTestUser(t, db)

	ok, err := checker.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_admin", true).Error)

	ok, err = checker.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok, "cached answer should still be served")

	checker.Invalidate(user.ID)
	ok, err = checker.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("unknown user", func(t *testing.T) {
		ok, err := checker.IsAdmin(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := billing.Sign("whsec", body)

	assert.True(t, billing.VerifySignature("whsec", body, sig))
	assert.True(t, billing.VerifySignature("whsec", body, "sha256="+sig))
	assert.False(t, billing.VerifySignature("other", body, sig))
	assert.False(t, billing.VerifySignature("whsec", []byte(`{"id":"evt_2"}`), sig))
	assert.False(t, billing.VerifySignature("whsec", body, "zz"))
	assert.False(t, billing.VerifySignature("", body, billing.Sign("", body)))
}

func event(t *testing.T, id, typ string, userID uuid.UUID) (billing.WebhookEvent, []byte) {
	t.Helper()
	var evt billing.WebhookEvent
	evt.ID = id
	evt.Type = typ
	evt.Data.UserID = userID
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, payload
}

func TestService_HandleEvent(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	t.Run("invoice paid is applied once", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db)
		evt, payload := event(t, "evt_paid_1", billing.EventInvoicePaid, user.ID)

		processed, err := f.svc.HandleEvent(ctx, evt, payload)
		require.NoError(t, err)
		assert.True(t, processed)

		first := testutil.ReloadUser(t, f.db, user.ID)
		assert.Equal(t, models.SubscriptionPremium, first.SubscriptionStatus)

		processed, err = f.svc.HandleEvent(ctx, evt, payload)
		require.NoError(t, err)
		assert.False(t, processed)

		second := testutil.ReloadUser(t, f.db, user.ID)
		assert.True(t, first.SubscriptionEndsAt.Equal(*second.SubscriptionEndsAt))

		var count int64
		f.db.Model(&models.PaymentEvent{}).Where("provider_event_id = ?", "evt_paid_1").Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("cancel keeps access", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(48*time.Hour)))
		evt, payload := event(t, "evt_cancel_1", billing.EventSubscriptionCanceled, user.ID)

		_, err := f.svc.HandleEvent(ctx, evt, payload)
		require.NoError(t, err)

		reloaded := testutil.ReloadUser(t, f.db, user.ID)
		assert.Equal(t, models.SubscriptionPremium, reloaded.SubscriptionStatus)
		assert.True(t, reloaded.CancelAtPeriodEnd)
	})

	t.Run("expired downgrades now", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, testutil.WithPremiumUntil(f.clock.Now().Add(48*time.Hour)))
		evt, payload := event(t, "evt_expired_1", billing.EventSubscriptionExpired, user.ID)

		_, err := f.svc.HandleEvent(ctx, evt, payload)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionFree, testutil.ReloadUser(t, f.db, user.ID).SubscriptionStatus)
	})

	t.Run("unknown type is recorded and ignored", func(t *testing.T) {
		evt, payload := event(t, "evt_other", "customer.updated", uuid.Nil)
		processed, err := f.svc.HandleEvent(ctx, evt, payload)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("missing user is invalid", func(t *testing.T) {
		evt, payload := event(t, "evt_bad", billing.EventInvoicePaid, uuid.Nil)
		_, err := f.svc.HandleEvent(ctx, evt, payload)
		assert.ErrorIs(t, err, billing.ErrInvalidEvent)
	})
}

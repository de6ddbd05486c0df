package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api"
	"github.com/hugh/dealdesk/internal/api/dto"
	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/notifications"
	"github.com/hugh/dealdesk/internal/storage"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/internal/testutil"
	"github.com/hugh/dealdesk/pkg/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPIN           = "2468"
	testWebhookSecret = "whsec_test"
)

type harness struct {
	*testutil.TestSetup
	router *api.Router
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tc := testutil.NewTestContext(t)
	logger := testutil.Logger()
	clock := tc.Clock

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	enc, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	settings := admin.NewSettingsService(tc.DB, admin.Settings{
		MaxSeats:             5,
		BillingPeriodMonths:  1,
		InvitationExpiryDays: 7,
		FreeAnalysisLimit:    1,
	}, time.Minute, clock, logger)
	checker := admin.NewChecker(tc.DB, time.Minute, clock)

	billingService := billing.NewService(tc.DB, settings, clock, m, logger)
	teamService := team.NewService(tc.DB, billingService, settings, clock, m, logger)
	authService := auth.NewService(tc.DB, tc.JWTService, clock, logger)
	authService.OnSignup(teamService.ClaimSignups)
	analysisService := analysis.NewService(tc.DB, billingService, enc, logger, analysis.Options{
		Limits:  settings,
		Store:   storage.NewMemoryStore(),
		Clock:   clock,
		Metrics: m,
	})

	router := api.NewRouter(api.RouterConfig{
		DB:                  tc.DB,
		Redis:               rdb,
		Logger:              logger,
		Clock:               clock,
		Metrics:             m,
		JWTService:          tc.JWTService,
		AuthService:         authService,
		BillingService:      billingService,
		TeamService:         teamService,
		AnalysisService:     analysisService,
		NotificationService: notifications.NewService(tc.DB, clock),
		AdminService:        admin.NewService(tc.DB, billingService, teamService, checker, logger),
		Settings:            settings,
		AdminChecker:        checker,
		PINVerifier:         admin.NewPINVerifier(testPIN, 0),
		WebhookSecret:       testWebhookSecret,
	})

	return &harness{TestSetup: tc, router: router, redis: mr}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, method, path, body, token)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func sampleInputs() map[string]interface{} {
	return map[string]interface{}{
		"purchase_price":            1000000,
		"units":                     10,
		"monthly_rent_per_unit":     1000,
		"vacancy_rate_pct":          5,
		"annual_operating_expenses": 40000,
		"down_payment_pct":          25,
		"interest_rate_pct":         6.5,
		"amortization_years":        30,
	}
}

func TestRouter_Health(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/health", nil, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
	var resp map[string]interface{}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "healthy", resp["status"])

	h.redis.Close()
	rr = h.do(t, http.MethodGet, "/health", nil, "")
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)

	rr = h.do(t, http.MethodGet, "/ready", nil, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestRouter_Metrics(t *testing.T) {
	h := newHarness(t)

	h.do(t, http.MethodGet, "/api/me", nil, h.Token)
	rr := h.do(t, http.MethodGet, "/metrics", nil, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "dealdesk_http_requests_total")
}

func TestRouter_RegisterLoginMe(t *testing.T) {
	h := newHarness(t)

	t.Run("register starts a trial", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "New.Owner@Example.com",
			"password": "securepassword123",
			"name":     "New Owner",
		}, "")
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "new.owner@example.com", resp.User.Email)
		assert.Equal(t, models.SubscriptionTrial, resp.User.SubscriptionStatus)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "new.owner@example.com",
			"password": "securepassword123",
		}, "")
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("weak password", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "weak@example.com",
			"password": "short",
		}, "")
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "password")
	})

	t.Run("login and me", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "new.owner@example.com",
			"password": "securepassword123",
		}, "")
		testutil.AssertStatus(t, rr, http.StatusOK)
		var login dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &login)

		rr = h.do(t, http.MethodGet, "/api/me", nil, login.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"full_access":true`)
	})

	t.Run("bad password", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "new.owner@example.com",
			"password": "wrongpassword1",
		}, "")
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("protected routes need a token", func(t *testing.T) {
		testutil.AssertStatus(t, h.do(t, http.MethodGet, "/api/me", nil, ""), http.StatusUnauthorized)
		testutil.AssertStatus(t, h.do(t, http.MethodGet, "/api/seats/info", nil, "garbage"), http.StatusUnauthorized)
	})
}

func TestRouter_AccountDeletion(t *testing.T) {
	h := newHarness(t)
	user, token := h.AddUser(t, testutil.WithPremiumUntil(h.Clock.Now().Add(10*24*time.Hour)))

	rr := h.do(t, http.MethodDelete, "/api/account", nil, token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	reloaded := testutil.ReloadUser(t, h.DB, user.ID)
	assert.Equal(t, models.AccountPendingDeletion, reloaded.AccountStatus)
	assert.True(t, reloaded.CancelAtPeriodEnd)
	assert.Equal(t, models.SubscriptionPremium, reloaded.SubscriptionStatus)

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "testpassword123",
	}, "")
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestRouter_SubscriptionAndSeats(t *testing.T) {
	h := newHarness(t)
	_, token := h.AddUser(t)

	t.Run("seats need premium", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/seats/purchase", map[string]int{"count": 2}, token)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	rr := h.do(t, http.MethodPost, "/api/subscription/upgrade", nil, token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var snap billing.Snapshot
	testutil.ParseJSONResponse(t, rr, &snap)
	assert.True(t, snap.ActivePremium)

	t.Run("purchase then add past the ceiling", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/seats/purchase", map[string]int{"count": 3}, token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = h.do(t, http.MethodPost, "/api/seats/add", map[string]int{"count": 3}, token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "3", resp.Details["current"])
		assert.Equal(t, "5", resp.Details["max"])
	})

	t.Run("second purchase conflicts", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/seats/purchase", map[string]int{"count": 1}, token)
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("remove more than available", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/seats/remove", map[string]int{"count": 4}, token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "3", resp.Details["available"])
	})

	t.Run("zero count", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/seats/add", map[string]int{"count": 0}, token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("info", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/seats/info", nil, token)
		testutil.AssertStatus(t, rr, http.StatusOK)
		var info billing.SeatInfo
		testutil.ParseJSONResponse(t, rr, &info)
		assert.Equal(t, 3, info.Purchased)
		assert.Equal(t, 5, info.MaxSeats)
	})

	t.Run("cancel keeps access", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/subscription/cancel", nil, token)
		testutil.AssertStatus(t, rr, http.StatusOK)
		var snap billing.Snapshot
		testutil.ParseJSONResponse(t, rr, &snap)
		assert.True(t, snap.CancelAtPeriodEnd)
		assert.True(t, snap.ActivePremium)

		rr = h.do(t, http.MethodPost, "/api/subscription/cancel", nil, token)
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})
}

func TestRouter_TeamFlow(t *testing.T) {
	h := newHarness(t)
	owner, ownerToken := h.AddUser(t, testutil.WithPremiumUntil(h.Clock.Now().Add(30*24*time.Hour)), testutil.WithSeats(1, 0))
	member, memberToken := h.AddUser(t)

	rr := h.do(t, http.MethodPost, "/api/team/invitations", map[string]string{"email": member.Email}, ownerToken)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var inv models.WorkspaceInvitation
	testutil.ParseJSONResponse(t, rr, &inv)
	assert.Equal(t, models.InvitationPending, inv.Status)

	t.Run("no seats left for a second invite", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/team/invitations", map[string]string{"email": "third@example.com"}, ownerToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("invitee sees it", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/team/invitations/received", nil, memberToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), inv.ID.String())

		rr = h.do(t, http.MethodGet, "/api/notifications", nil, memberToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"unread":1`)
	})

	t.Run("owner cannot accept on behalf", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/team/invitations/"+inv.ID.String()+"/accept", nil, ownerToken)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	rr = h.do(t, http.MethodPost, "/api/team/invitations/"+inv.ID.String()+"/accept", nil, memberToken)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, models.SubscriptionEnterprise, testutil.ReloadUser(t, h.DB, member.ID).SubscriptionStatus)

	rr = h.do(t, http.MethodGet, "/api/team/members", nil, ownerToken)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), member.ID.String())

	rr = h.do(t, http.MethodPost, "/api/team/memberships/"+owner.ID.String()+"/leave", nil, memberToken)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, models.SubscriptionFree, testutil.ReloadUser(t, h.DB, member.ID).SubscriptionStatus)
	assert.Equal(t, 0, testutil.ReloadUser(t, h.DB, owner.ID).UsedSeats)

	t.Run("bad id", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/team/invitations/not-a-uuid/decline", nil, memberToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestRouter_Analyses(t *testing.T) {
	h := newHarness(t)
	_, freeToken := h.AddUser(t)
	_, paidToken := h.AddUser(t, testutil.WithPremiumUntil(h.Clock.Now().Add(24*time.Hour)))

	t.Run("calculate", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/calculate", sampleInputs(), freeToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		var resp dto.CalculateResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, 74000.0, resp.Results.NOI)
		assert.Equal(t, 7.4, resp.Results.CapRatePct)
	})

	t.Run("calculate rejects bad inputs", func(t *testing.T) {
		in := sampleInputs()
		in["units"] = 0
		rr := h.do(t, http.MethodPost, "/api/calculate", in, freeToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "units")
	})

	body := map[string]interface{}{"name": "Elm Street", "inputs": sampleInputs()}

	t.Run("free limit", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/analyses", body, freeToken)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		rr = h.do(t, http.MethodPost, "/api/analyses", body, freeToken)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "1", resp.Details["limit"])
	})

	t.Run("export needs full access", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/analyses", nil, freeToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		var page struct {
			Data []models.Analysis `json:"data"`
		}
		testutil.ParseJSONResponse(t, rr, &page)
		require.Len(t, page.Data, 1)

		rr = h.do(t, http.MethodPost, "/api/analyses/"+page.Data[0].ID.String()+"/export", nil, freeToken)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("paid save, fetch, export, delete", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/analyses", body, paidToken)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		var saved analysis.Saved
		testutil.ParseJSONResponse(t, rr, &saved)
		path := "/api/analyses/" + saved.ID.String()

		rr = h.do(t, http.MethodGet, path, nil, paidToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"purchase_price":1000000`)

		rr = h.do(t, http.MethodGet, path, nil, freeToken)
		testutil.AssertStatus(t, rr, http.StatusNotFound)

		rr = h.do(t, http.MethodPost, path+"/export", nil, paidToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), "memory://exports/")

		rr = h.do(t, http.MethodDelete, path, nil, paidToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		rr = h.do(t, http.MethodGet, path, nil, paidToken)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestRouter_Notifications(t *testing.T) {
	h := newHarness(t)
	n := models.Notification{UserID: h.User.ID, Type: models.NotificationSubscription, Message: "hello"}
	require.NoError(t, h.DB.Create(&n).Error)

	rr := h.do(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", nil, h.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = h.do(t, http.MethodGet, "/api/notifications?unread=true", nil, h.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"total":0`)

	_, otherToken := h.AddUser(t)
	rr = h.do(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", nil, otherToken)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestRouter_Admin(t *testing.T) {
	h := newHarness(t)
	adminUser, adminToken := h.AddUser(t, testutil.WithAdmin())
	target, _ := h.AddUser(t)

	t.Run("non-admins are forbidden", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/admin/stats", nil, h.Token)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("stats and users", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/admin/stats", nil, adminToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"total_users":3`)

		rr = h.do(t, http.MethodGet, "/api/admin/users?per_page=2", nil, adminToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"total_pages":2`)
	})

	t.Run("settings", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/api/admin/settings", map[string]int{"max_seats": 12}, adminToken)
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = h.do(t, http.MethodGet, "/api/admin/settings", nil, adminToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `"max_seats":12`)

		rr = h.do(t, http.MethodPut, "/api/admin/settings", map[string]int{"invitation_expiry_days": 0}, adminToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("grant subscription", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/api/admin/users/"+target.ID.String()+"/subscription",
			map[string]string{"status": "enterprise"}, adminToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, models.SubscriptionEnterprise, testutil.ReloadUser(t, h.DB, target.ID).SubscriptionStatus)

		rr = h.do(t, http.MethodPut, "/api/admin/users/"+target.ID.String()+"/subscription",
			map[string]string{"status": "gold"}, adminToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("cannot demote self", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/api/admin/users/"+adminUser.ID.String()+"/admin",
			map[string]bool{"is_admin": false}, adminToken)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("sweeps without a queue", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/admin/sweeps", nil, adminToken)
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	})

	t.Run("delete requires the PIN", func(t *testing.T) {
		path := "/api/admin/users/" + target.ID.String()

		rr := h.do(t, http.MethodDelete, path, nil, adminToken)
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		req := testutil.AuthenticatedRequest(t, http.MethodDelete, path, nil, adminToken)
		req.Header.Set("X-Admin-PIN", testPIN)
		rr = httptest.NewRecorder()
		h.router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var count int64
		require.NoError(t, h.DB.Unscoped().Model(&models.User{}).Where("id = ?", target.ID).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestRouter_PaymentWebhook(t *testing.T) {
	h := newHarness(t)
	user, _ := h.AddUser(t)

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_" + uuid.NewString(),
		"type": billing.EventInvoicePaid,
		"data": map[string]string{"user_id": user.ID.String()},
	})
	require.NoError(t, err)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Signature", signature)
		}
		rr := httptest.NewRecorder()
		h.router.ServeHTTP(rr, req)
		return rr
	}

	testutil.AssertStatus(t, send(""), http.StatusUnauthorized)
	testutil.AssertStatus(t, send(strings.Repeat("0", 64)), http.StatusUnauthorized)

	sig := "sha256=" + billing.Sign(testWebhookSecret, payload)
	rr := send(sig)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"processed":true`)
	assert.Equal(t, models.SubscriptionPremium, testutil.ReloadUser(t, h.DB, user.ID).SubscriptionStatus)

	rr = send(sig)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"processed":false`)
}

package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarotlab/fortune-core/internal/middleware"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	"github.com/tarotlab/fortune-core/internal/pkg/jwt"
	"github.com/tarotlab/fortune-core/internal/testutil"
)

func TestProvisionIsIdempotent(t *testing.T) {
	svc := NewService(testutil.SQLite(t))
	ctx := context.Background()

	e, created, err := svc.Provision(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Entitlement{
		UserID: "u1", Email: "a@example.com", Tier: tier.Free,
		DailyQuestionLimit: 5, CanSynthesis: false, MaxTokens: 500,
	}, e)

	again, created, err := svc.Provision(ctx, "u1", "other@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e, again)
}

func TestGetMissing(t *testing.T) {
	svc := NewService(testutil.SQLite(t))
	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTierAppliesDefaults(t *testing.T) {
	svc := NewService(testutil.SQLite(t))
	ctx := context.Background()

	e, err := svc.SetTier(ctx, "u2", tier.Archmage)
	require.NoError(t, err)
	assert.Equal(t, tier.Archmage, e.Tier)
	assert.True(t, e.Unlimited())
	assert.True(t, e.CanSynthesis)
	assert.Equal(t, 8000, e.MaxTokens)

	// Downgrades write zero values too.
	e, err = svc.SetTier(ctx, "u2", tier.Plus)
	require.NoError(t, err)
	assert.Equal(t, tier.Plus, e.Tier)
	assert.Equal(t, 30, e.DailyQuestionLimit)
	assert.False(t, e.CanSynthesis)
}

func TestAnonymousIsFree(t *testing.T) {
	a := Anonymous()
	assert.Equal(t, tier.Free, a.Tier)
	assert.Equal(t, 5, a.DailyQuestionLimit)
	assert.Empty(t, a.UserID)
}

func TestAccessIsAdmin(t *testing.T) {
	a := Access{AdminEmails: []string{" Admin@Example.com "}}
	assert.True(t, a.IsAdmin("admin@example.com"))
	assert.False(t, a.IsAdmin(""))
	assert.False(t, a.IsAdmin("user@example.com"))
}

type server struct {
	router *gin.Engine
	svc    *Service
	ledger quota.Ledger
}

func newServer(t *testing.T, access Access) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwt.SetSecret("test-secret")

	db := testutil.SQLite(t)
	zone := calendar.MustNew("Asia/Seoul").WithClock(func() time.Time {
		return time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)
	})
	svc := NewService(db)
	ledger := quota.NewGormLedger(db, zone, nil)

	r := gin.New()
	NewHandler(svc, ledger, zone, access, nil).RegisterRoutes(r.Group("/api"), middleware.Auth())
	return &server{router: r, svc: svc, ledger: ledger}
}

func (s *server) do(t *testing.T, method, path, uid, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		token, err := jwt.Sign(uid, email, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestMeRequiresAuth(t *testing.T) {
	s := newServer(t, Access{})
	w := s.do(t, http.MethodGet, "/api/me", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"ok":0,"code":"UNAUTHORIZED","message":"authentication required"}`, w.Body.String())
}

func TestMeReportsQuota(t *testing.T) {
	s := newServer(t, Access{})
	_, err := s.ledger.CheckAndIncrement(context.Background(), "u1", 5)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/me", "u1", "u1@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body struct {
		Entitlement Entitlement `json:"entitlement"`
		Quota       QuotaView   `json:"quota"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, tier.Free, body.Entitlement.Tier)
	assert.Equal(t, 1, body.Quota.Used)
	assert.Equal(t, 4, body.Quota.Remaining)
	assert.Equal(t, "2025-06-10", body.Quota.DateKey)
	assert.True(t, body.Quota.ResetAt.Equal(time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)))
}

func TestProvisionRoute(t *testing.T) {
	s := newServer(t, Access{})
	w := s.do(t, http.MethodPost, "/api/auth/provision", "u9", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":true`)

	w = s.do(t, http.MethodPost, "/api/auth/provision", "u9", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":false`)
}

func TestSetTierGates(t *testing.T) {
	body := map[string]string{"uid": "target", "tier": "pro"}

	s := newServer(t, Access{TestMode: false, AdminEmails: []string{"root@example.com"}})
	w := s.do(t, http.MethodPost, "/api/admin/set-tier", "admin", "root@example.com", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "TEST_MODE_REQUIRED")

	s = newServer(t, Access{TestMode: true, AdminEmails: []string{"root@example.com"}})
	w = s.do(t, http.MethodPost, "/api/admin/set-tier", "someone", "someone@example.com", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ADMIN_REQUIRED")

	w = s.do(t, http.MethodPost, "/api/admin/set-tier", "admin", "root@example.com", map[string]string{"uid": "target", "tier": "gold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TIER")

	w = s.do(t, http.MethodPost, "/api/admin/set-tier", "admin", "root@example.com", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"entitlement":{`)
	assert.Contains(t, w.Body.String(), `"tier":"pro"`)

	e, err := s.svc.Get(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, tier.Pro, e.Tier)
	assert.Equal(t, 100, e.DailyQuestionLimit)
}

package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/tarotlab/fortune-core/internal/pkg/redis"
	"github.com/tarotlab/fortune-core/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, d Deps, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	RegisterRoutes(r.Group("/api"), d)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api"+path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	db := testutil.SQLite(t)
	mr, rdb := testutil.Redis(t)
	fixed := func() time.Time { return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC) }
	d := Deps{DB: db, Redis: pkgredis.Wrap(rdb), HasAI: true, Now: fixed}

	w, body := get(t, d, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["database"])
	assert.Equal(t, true, body["redis"])
	assert.Equal(t, map[string]any{"ai": true, "gemini": false}, body["providers"])
	assert.Equal(t, "2025-06-10T00:00:00Z", body["timestamp"])

	t.Run("redis down", func(t *testing.T) {
		mr.Close()
		w, body := get(t, d, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, false, body["redis"])
	})

	t.Run("redis not configured", func(t *testing.T) {
		w, body := get(t, Deps{DB: db}, "/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, body, "redis")
	})

	t.Run("no database", func(t *testing.T) {
		w, body := get(t, Deps{}, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, false, body["database"])
	})
}

func TestConfigFlags(t *testing.T) {
	w, body := get(t, Deps{Flags: Flags{TestMode: true}}, "/config")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "s-maxage=60")
	assert.Equal(t, map[string]any{"paymentsEnabled": false, "testMode": true}, body)
}

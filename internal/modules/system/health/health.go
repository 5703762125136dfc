// Package health serves the liveness probe and the public feature flags.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Flags are the feature flags published on /config. They must never carry
// per-user data because the response is cacheable.
type Flags struct {
	PaymentsEnabled bool `json:"paymentsEnabled"`
	TestMode        bool `json:"testMode"`
}

// Deps wires the probes. Redis is nil when no backend uses it.
type Deps struct {
	DB        *gorm.DB
	Redis     Pinger
	Flags     Flags
	HasAI     bool
	HasGemini bool
	Now       func() time.Time
}

type status struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Redis     *bool     `json:"redis,omitempty"`
	Providers providers `json:"providers"`
	Timestamp time.Time `json:"timestamp"`
}

type providers struct {
	AI     bool `json:"ai"`
	Gemini bool `json:"gemini"`
}

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		st := status{
			Status:    "ok",
			Database:  pingDB(ctx, d.DB),
			Providers: providers{AI: d.HasAI, Gemini: d.HasGemini},
			Timestamp: now().UTC(),
		}
		healthy := st.Database
		if d.Redis != nil {
			ok := d.Redis.Ping(ctx) == nil
			st.Redis = &ok
			healthy = healthy && ok
		}

		code := http.StatusOK
		if !healthy {
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(code, st)
	})

	rg.GET("/config", func(c *gin.Context) {
		c.Header("Cache-Control", "public, s-maxage=60, stale-while-revalidate=30")
		response.OK(c, d.Flags)
	})
}

func pingDB(ctx context.Context, db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

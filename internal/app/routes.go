package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tarotlab/fortune-core/internal/middleware"
	"github.com/tarotlab/fortune-core/internal/modules/account/entitlement"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/interpret"
	"github.com/tarotlab/fortune-core/internal/modules/system/health"
	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

const apiPrefix = "/api"

func (a *App) registerRoutes(ledger quota.Ledger) {
	r := a.router
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed, "method not allowed")
	})

	api := r.Group(apiPrefix)

	hd := health.Deps{
		DB: a.db,
		Flags: health.Flags{
			PaymentsEnabled: a.cfg.PaymentsEnabled,
			TestMode:        a.cfg.TestMode,
		},
		HasAI:     a.pipeline != nil,
		HasGemini: a.verifier != nil,
	}
	if a.rc != nil {
		hd.Redis = a.rc
	}
	health.RegisterRoutes(api, hd)

	entitlements := entitlement.NewService(a.db)
	entitlement.NewHandler(entitlements, ledger, a.zone, entitlement.Access{
		TestMode:    a.cfg.TestMode,
		AdminEmails: a.cfg.AdminEmails,
	}, a.logger).RegisterRoutes(api, authMW)

	// The burst limiter and idempotence keys live in Redis.
	var guards []gin.HandlerFunc
	if a.rc != nil {
		guards = append(guards,
			middleware.RateLimit(a.rc.Raw(), middleware.RateLimitOptions{}, a.logger),
			middleware.Idempotence(a.rc.Raw(), a.logger),
		)
	}
	interpret.NewHandler(interpret.Deps{
		Pipeline:     a.pipeline,
		Entitlements: entitlements,
		Ledger:       ledger,
		Verifier:     a.verifier,
		Zone:         a.zone,
		TestMode:     a.cfg.TestMode,
		Logger:       a.logger,
	}).RegisterRoutes(api, middleware.OptionalAuth(), guards...)
}

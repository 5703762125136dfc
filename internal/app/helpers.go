package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tarotlab/fortune-core/internal/config"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/corecache"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/crosscheck"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/interpret"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/provider"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	jwtpkg "github.com/tarotlab/fortune-core/internal/pkg/jwt"
	pkgredis "github.com/tarotlab/fortune-core/internal/pkg/redis"
)

func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) (*calendar.Zone, error) {
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	zone, err := calendar.New(cfg.Quota.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota.timezone %q: %w", cfg.Quota.Timezone, err)
	}
	return zone, nil
}

func buildCache(cfg config.CacheConfig, rc *pkgredis.Client) corecache.Cache {
	opts := corecache.Options{TTL: cfg.TTL, Capacity: cfg.Capacity}
	if cfg.Driver == config.DriverRedis && rc != nil {
		return corecache.NewRedis(rc.Raw(), opts)
	}
	return corecache.NewMemory(opts)
}

func buildLedger(cfg config.QuotaConfig, st stores, zone *calendar.Zone, logger *zap.Logger) quota.Ledger {
	if cfg.Driver == config.DriverRedis && st.rc != nil {
		return quota.NewRedisLedger(st.rc.Raw(), zone)
	}
	return quota.NewGormLedger(st.db, zone, logger)
}

// buildPipeline returns a nil Pipeline when no provider has credentials, so
// the reading endpoints answer ENV_CONFIG_ERROR instead of failing startup.
func buildPipeline(cfg config.AIConfig, cache corecache.Cache, logger *zap.Logger) (interpret.Pipeline, error) {
	stages, err := provider.FromConfig(cfg)
	if errors.Is(err, provider.ErrNotConfigured) {
		logger.Warn("no AI provider configured, reading endpoints are disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	return pipeline.NewService(cache, stages, logger), nil
}

// buildVerifier returns nil when cross-checking is off or its client cannot
// be created. Archmage readings are then served without it.
func buildVerifier(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) interpret.Verifier {
	if !cfg.Gemini.Enabled() {
		return nil
	}
	v, err := crosscheck.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Timeout)
	if err != nil {
		logger.Warn("gemini cross-check unavailable", zap.Error(err))
		return nil
	}
	return v
}

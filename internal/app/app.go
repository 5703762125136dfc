package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tarotlab/fortune-core/internal/config"
	"github.com/tarotlab/fortune-core/internal/database"
	"github.com/tarotlab/fortune-core/internal/middleware"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/interpret"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	pkgcron "github.com/tarotlab/fortune-core/internal/pkg/cron"
	pkgredis "github.com/tarotlab/fortune-core/internal/pkg/redis"
	"github.com/tarotlab/fortune-core/internal/pkg/tracing"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	rc       *pkgredis.Client
	zone     *calendar.Zone
	logger   *zap.Logger
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
	tracing  tracing.Shutdown
	pipeline interpret.Pipeline
	verifier interpret.Verifier
}

// stores are the connections New opens. Tests pass their own.
type stores struct {
	db *gorm.DB
	rc *pkgredis.Client
}

// New opens the stores and builds the application: DB → Redis → tracing → routes.
func New(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg, true, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("redis: %w", err)
	}

	a, err := build(ctx, logger, cfg, stores{db: db, rc: rc})
	if err != nil {
		_ = rc.Close()
		closeDB(db)
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig, st stores) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	zone, err := applyRuntimeSettings(cfg, logger)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Env, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	cache := buildCache(cfg.Cache, st.rc)
	a := &App{
		cfg:     cfg,
		router:  router,
		db:      st.db,
		rc:      st.rc,
		zone:    zone,
		logger:  logger,
		tracing: shutdownTracing,
		sched:   pkgcron.New(logger),
	}
	a.pipeline, err = buildPipeline(cfg.AI, cache, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	a.verifier = buildVerifier(ctx, cfg.AI, logger)

	registerCronJobs(a.sched, cache, cfg, logger)
	jobCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sched.Start(jobCtx)

	a.registerRoutes(buildLedger(cfg.Quota, st, zone, logger))

	logger.Info("application ready",
		zap.String("env", cfg.Env),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("quota", cfg.Quota.Driver),
		zap.Bool("ai", a.pipeline != nil),
		zap.Bool("crossCheck", a.verifier != nil),
		zap.Bool("testMode", cfg.TestMode),
	)
	return a, nil
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			interpret.TierOverrideHeader, middleware.IdempotencyHeader, middleware.RequestIDHeader,
		},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		cc.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		cc.AllowOriginFunc = func(string) bool { return true }
	}
	return cc
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs, flushes spans and closes the stores.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	a.sched.Wait()
	if err := a.tracing(ctx); err != nil {
		a.logger.Warn("trace flush failed", zap.Error(err))
	}
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

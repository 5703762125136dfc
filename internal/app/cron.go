package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tarotlab/fortune-core/internal/config"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/corecache"
	pkgcron "github.com/tarotlab/fortune-core/internal/pkg/cron"
	"github.com/tarotlab/fortune-core/internal/pkg/nativelog"
)

const (
	sweepCacheInterval = time.Minute
	pruneLogsInterval  = 24 * time.Hour
	logRetentionDays   = 14
)

// registerCronJobs registers the scheduled housekeeping jobs.
func registerCronJobs(sched *pkgcron.Scheduler, cache corecache.Cache, cfg *config.AppConfig, logger *zap.Logger) {
	cronLogger := logger.Named("cron")

	// Redis expires entries itself.
	if mem, ok := cache.(*corecache.Memory); ok {
		sched.Register(pkgcron.Job{
			Name:        "sweep_core_cache",
			Description: "drop expired core readings",
			Interval:    sweepCacheInterval,
			Fn: func(context.Context) error {
				if n := mem.Sweep(); n > 0 {
					cronLogger.Debug("swept core cache", zap.Int("removed", n))
				}
				return nil
			},
		})
	}

	logDir := nativelog.ResolveDir(cfg.LogDir())
	sched.Register(pkgcron.Job{
		Name:        "prune_logs",
		Description: "delete daily log files older than two weeks",
		Interval:    pruneLogsInterval,
		Fn: func(context.Context) error {
			n, err := nativelog.Prune(logDir, time.Now(), logRetentionDays)
			if err != nil {
				return err
			}
			if n > 0 {
				cronLogger.Info("pruned log files", zap.Int("removed", n), zap.String("dir", logDir))
			}
			return nil
		},
	})
}

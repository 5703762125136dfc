package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/tarotlab/fortune-core/internal/models"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxTxAttempts = 3
	txRetryDelay  = 20 * time.Millisecond

	mysqlErrDeadlock    = 1213
	mysqlErrLockTimeout = 1205
)

// GormLedger keeps one row per (user, day) and mutates it inside a
// transaction holding the row lock.
type GormLedger struct {
	db     *gorm.DB
	zone   *calendar.Zone
	logger *zap.Logger
}

func NewGormLedger(db *gorm.DB, zone *calendar.Zone, logger *zap.Logger) *GormLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormLedger{db: db, zone: zone, logger: logger}
}

func (l *GormLedger) CheckAndIncrement(ctx context.Context, userID string, dailyLimit int) (Result, error) {
	dateKey := l.zone.Today()

	var res Result
	err := l.retry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row, err := lockUsage(tx, userID, dateKey)
			if err != nil {
				return err
			}

			if !unlimited(dailyLimit) && row.UsedCount >= dailyLimit {
				res = denied(row.UsedCount, dailyLimit, dateKey)
				return nil
			}

			q := tx.Model(&models.QuotaUsageModel{}).Where("id = ?", row.ID)
			if !unlimited(dailyLimit) {
				q = q.Where("used_count < ?", dailyLimit)
			}
			upd := q.Update("used_count", gorm.Expr("used_count + ?", 1))
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				res = denied(row.UsedCount, dailyLimit, dateKey)
				return nil
			}
			res = allowed(row.UsedCount+1, dailyLimit, dateKey)
			return nil
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: check and increment %s/%s: %v", ErrStore, userID, dateKey, err)
	}
	return res, nil
}

func (l *GormLedger) Status(ctx context.Context, userID string, dailyLimit int) (Result, error) {
	dateKey := l.zone.Today()

	var row models.QuotaUsageModel
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND date_key = ?", userID, dateKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return Result{}, fmt.Errorf("%w: status %s/%s: %v", ErrStore, userID, dateKey, err)
	}
	return status(row.UsedCount, dailyLimit, dateKey), nil
}

// lockUsage creates today's row if needed and reads it back under FOR UPDATE.
func lockUsage(tx *gorm.DB, userID, dateKey string) (*models.QuotaUsageModel, error) {
	seed := models.QuotaUsageModel{UserID: userID, DateKey: dateKey}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var row models.QuotaUsageModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND date_key = ?", userID, dateKey).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (l *GormLedger) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		l.logger.Warn("quota transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryDelay):
		}
	}
	return err
}

func retryable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockTimeout
	}
	return false
}

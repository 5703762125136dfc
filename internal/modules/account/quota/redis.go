package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
)

// Counters carry no expiry. One key per user and day is the usage history.
const redisQuotaPrefix = "fortune:quota:"

// checkAndIncrScript returns {allowed, used}. ARGV[2] is the unlimited sentinel.
var checkAndIncrScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit ~= tonumber(ARGV[2]) and used >= limit then
  return {0, used}
end
used = redis.call('INCR', KEYS[1])
return {1, used}
`)

// RedisLedger keeps counters in redis. The script runs atomically on the
// server, so concurrent callers can never pass the limit together.
type RedisLedger struct {
	rdb  *redis.Client
	zone *calendar.Zone
}

func NewRedisLedger(rdb *redis.Client, zone *calendar.Zone) *RedisLedger {
	return &RedisLedger{rdb: rdb, zone: zone}
}

func redisQuotaKey(userID, dateKey string) string {
	return redisQuotaPrefix + userID + ":" + dateKey
}

func (l *RedisLedger) CheckAndIncrement(ctx context.Context, userID string, dailyLimit int) (Result, error) {
	dateKey := l.zone.Today()

	out, err := checkAndIncrScript.Run(ctx, l.rdb, []string{redisQuotaKey(userID, dateKey)}, dailyLimit, tier.Unlimited).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: check and increment %s/%s: %v", ErrStore, userID, dateKey, err)
	}
	if len(out) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrStore, out)
	}

	used := int(out[1])
	if out[0] == 1 {
		return allowed(used, dailyLimit, dateKey), nil
	}
	return denied(used, dailyLimit, dateKey), nil
}

func (l *RedisLedger) Status(ctx context.Context, userID string, dailyLimit int) (Result, error) {
	dateKey := l.zone.Today()
	used, err := l.rdb.Get(ctx, redisQuotaKey(userID, dateKey)).Int()
	if errors.Is(err, redis.Nil) {
		used, err = 0, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: status %s/%s: %v", ErrStore, userID, dateKey, err)
	}
	return status(used, dailyLimit, dateKey), nil
}

package corecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
)

const (
	redisKeyPrefix = "fortune:core:"
	redisOrderKey  = "fortune:core:order"
)

// Redis shares the cache between processes. Values live under their own key
// with a PX expiry; insertion order is tracked in a sorted set.
type Redis struct {
	rdb  *redis.Client
	opts Options
	now  func() time.Time
}

func NewRedis(rdb *redis.Client, opts Options) *Redis {
	return &Redis{rdb: rdb, opts: opts.withDefaults(), now: time.Now}
}

// WithClock replaces the time source used to order insertions.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) Get(ctx context.Context, key string) (reading.CoreReading, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.rdb.ZRem(ctx, redisOrderKey, key)
		return reading.CoreReading{}, false, nil
	}
	if err != nil {
		return reading.CoreReading{}, false, fmt.Errorf("redis get core %s: %w", key, err)
	}

	var core reading.CoreReading
	if err := json.Unmarshal(raw, &core); err != nil {
		return reading.CoreReading{}, false, fmt.Errorf("decode core %s: %w", key, err)
	}
	return core, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value reading.CoreReading) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode core %s: %w", key, err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, raw, r.opts.TTL)
		pipe.ZAddNX(ctx, redisOrderKey, redis.Z{Score: float64(r.now().UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put core %s: %w", key, err)
	}
	return r.trim(ctx)
}

func (r *Redis) Evict(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+key)
		pipe.ZRem(ctx, redisOrderKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis evict core %s: %w", key, err)
	}
	return nil
}

func (r *Redis) trim(ctx context.Context) error {
	size, err := r.rdb.ZCard(ctx, redisOrderKey).Result()
	if err != nil {
		return fmt.Errorf("redis core order size: %w", err)
	}
	overflow := size - int64(r.opts.Capacity)
	if overflow <= 0 {
		return nil
	}

	oldest, err := r.rdb.ZPopMin(ctx, redisOrderKey, overflow).Result()
	if err != nil {
		return fmt.Errorf("redis core evict oldest: %w", err)
	}
	keys := make([]string, 0, len(oldest))
	for _, z := range oldest {
		if member, ok := z.Member.(string); ok {
			keys = append(keys, redisKeyPrefix+member)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

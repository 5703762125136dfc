package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

const (
	defaultRateLimitMax    = 10
	defaultRateLimitWindow = time.Second
	rateLimitKeyPrefix     = "fortune:rate:"
)

// RateLimitOptions bounds anonymous bursts per client IP.
type RateLimitOptions struct {
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

func (o RateLimitOptions) withDefaults() RateLimitOptions {
	if o.Max <= 0 {
		o.Max = defaultRateLimitMax
	}
	if o.Window <= 0 {
		o.Window = defaultRateLimitWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RateLimit counts requests per IP in fixed windows. Authenticated callers are
// bounded by their daily quota instead and skip the limiter. Redis failures let
// the request through.
func RateLimit(rdb *redis.Client, opts RateLimitOptions, log *zap.Logger) gin.HandlerFunc {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	retryAfter := strconv.Itoa(int((opts.Window + time.Second - 1) / time.Second))

	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		window := opts.Now().UnixNano() / int64(opts.Window)
		key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, ip, window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("rate limit unavailable", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, opts.Window+time.Second)
		}

		if count > opts.Max {
			log.Info("rate limited", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", retryAfter)
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests, slow down")
			return
		}

		c.Next()
	}
}

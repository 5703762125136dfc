package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	idempotenceTTL       = 60 * time.Second
	idempotenceKeyPrefix = "fortune:idem:"
	maxIdempotencyKeyLen = 128

	idemPending = "0"
	idemDone    = "1"
)

// Idempotence rejects a replay of a request that carries the same
// Idempotency-Key while the first one is in flight or for a minute after it
// succeeded. Requests without the header pass untouched. Keys are scoped to
// the caller so two users cannot collide.
func Idempotence(rdb *redis.Client, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if raw == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if len(raw) > maxIdempotencyKeyLen {
			response.BadRequest(c, response.CodeInvalidBody, IdempotencyHeader+" is too long")
			return
		}

		redisKey := idempotenceKeyPrefix + scopedKey(c, raw)
		ctx := c.Request.Context()

		ok, err := rdb.SetNX(ctx, redisKey, idemPending, idempotenceTTL).Result()
		if err != nil {
			log.Warn("idempotence store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			msg := "an identical request succeeded in the last minute"
			if val, err := rdb.Get(ctx, redisKey).Result(); err == nil && val == idemPending {
				msg = "an identical request is still being processed"
			} else if err != nil && !errors.Is(err, redis.Nil) {
				log.Warn("idempotence lookup failed", zap.Error(err))
			}
			response.Error(c, http.StatusConflict, response.CodeDuplicateRequest, msg)
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, idemDone, redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}

func scopedKey(c *gin.Context, key string) string {
	owner := CurrentUserID(c)
	if owner == "" {
		owner = "ip:" + c.ClientIP()
	}
	h := sha256.Sum256([]byte(c.Request.Method + "|" + c.FullPath() + "|" + owner + "|" + key))
	return hex.EncodeToString(h[:])
}

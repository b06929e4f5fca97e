package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fotoreg/api/internal/response"
)

// RateLimit enforces a fixed-window counter per client IP in Redis. When
// Redis is unreachable the limiter fails open: availability beats strictness
// for this API.
func RateLimit(rdb *redis.Client, logger zerolog.Logger, name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", name, c.ClientIP())

		pipe := rdb.TxPipeline()
		count := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			logger.Warn().Err(err).Str("limiter", name).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}

		if count.Val() > int64(limit) {
			ttl, err := rdb.TTL(c.Request.Context(), key).Result()
			retryAfter := int(window.Seconds())
			if err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds()) + 1
			}
			response.AbortRateLimited(c, retryAfter)
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimit caps HTTP requests per client IP inside a fixed window, counting
// in Redis so the limit holds across instances. When Redis is unreachable the
// request is let through; availability beats strictness here.
func RateLimit(rdb *redis.Client, max int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:http:" + c.ClientIP()

		pipe := rdb.TxPipeline()
		count := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		if count.Val() > int64(max) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/viewcache/pkg/logger"
	"github.com/charlesng35/viewcache/pkg/response"
)

// Logger writes a concise structured access log for each request, including
// the cache disposition header when a handler set one.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if cacheStatus := c.Writer.Header().Get(response.CacheStatusHeader); cacheStatus != "" {
			fields = append(fields, zap.String("cache", cacheStatus))
		}

		logger.WithModule("http").Info("request", fields...)
	}
}

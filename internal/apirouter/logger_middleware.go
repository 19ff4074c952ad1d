package apirouter

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/cbserver/internal/logging"
	"go.uber.org/zap"
)

func LoggerMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger := logger.Ctx(c.Request.Context())
		fields := []zap.Field{
			zap.String("path", path),
			zap.String("query", query),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
			if c.Writer.Status() >= 500 {
				logger.Error("request failed", fields...)
			} else {
				logger.Warn("request failed", fields...)
			}
			return
		}
		logger.Info("request completed", fields...)
	}
}

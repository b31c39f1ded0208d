package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kupukupu/syncd/pkg/logger"
)

// LoggerMiddleware creates request logging middleware
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		duration := time.Since(startTime)

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		)

		if len(c.Errors) > 0 {
			log.Error("Request errors", "errors", c.Errors.String())
		}
	}
}

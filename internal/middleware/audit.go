package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit writes one structured audit entry for each successful mutating request.
func Audit(logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		userID := ""
		if claims, ok := CurrentClaims(c); ok {
			userID = claims.UserID
		}

		logger.Info("audit",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("resource_id", c.Param("classId")),
			zap.String("user_id", userID),
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.GetHeader("User-Agent")),
		)
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/internal/service"
)

// unmatchedRoute labels requests gin could not route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template.
// Requests to the paths listed in skip are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if _, ok := skipped[path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

package middleware

import (
	"strconv"
	"time"

	"codejudge/internal/common/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count and latency by route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

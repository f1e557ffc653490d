package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPRecorder is the metrics sink for requests.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// MetricsMiddleware creates middleware for collecting HTTP metrics
func MetricsMiddleware(collector HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Route templates keep label cardinality bounded; unmatched paths
		// collapse into one series.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

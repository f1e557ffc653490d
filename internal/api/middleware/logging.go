package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger receives one entry per finished request.
type RequestLogger interface {
	LogRequest(method, endpoint string, statusCode int, latency time.Duration, fields logrus.Fields)
}

// LoggingMiddleware hands every request to logger. Successful requests are
// batched by the logger; everything else is logged at once.
func LoggingMiddleware(logger RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := logrus.Fields{
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["error_message"] = c.Errors.String()
		}
		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), fields)
	}
}

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

// ErrorHandlingMiddleware recovers handler panics into a 500 response.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"query":       c.Request.URL.RawQuery,
			"ip":          c.ClientIP(),
			"panic":       fmt.Sprintf("%v", recovered),
			"stack_trace": string(debug.Stack()),
		}).Error("Panic recovered in HTTP handler")

		utils.SendError(c, http.StatusInternalServerError, "Internal server error")
		c.Abort()
	})
}

// NotFoundHandler answers unknown routes with endpoint suggestions.
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "Endpoint not found")
	}
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendError(c, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

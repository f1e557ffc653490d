package utils

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
	Meta      interface{} `json:"meta,omitempty"`
}

// ErrorResponse represents an enhanced error response with additional context
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	Code      int         `json:"code"`
	Kind      string      `json:"kind,omitempty"`
	Timestamp string      `json:"timestamp"`
	Request   RequestInfo `json:"request"`
	Details   interface{} `json:"details,omitempty"`
}

// RequestInfo provides context about the failed request
type RequestInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SendSuccess sends a successful response
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

// SendCreated sends a 201 with the created resource.
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

// SendSuccessWithMeta sends a successful response with metadata
func SendSuccessWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		Timestamp: now(),
	})
}

// SendError sends an error response with enhanced context
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, newErrorResponse(c, statusCode, message, ""))
}

// SendAppError maps err onto its HTTP status: not found is 404, invalid
// input 400, transient backend failures 503, anything else 500.
func SendAppError(c *gin.Context, err error) {
	status := apperrors.GetStatusCode(err)
	kind := ""
	if k := apperrors.KindOf(err); k != apperrors.KindUnknown {
		kind = k.String()
	}
	message := err.Error()
	if status == http.StatusInternalServerError && kind == "" && !apperrors.IsAppError(err) {
		message = "Internal server error"
	}
	c.Error(err)
	c.JSON(status, newErrorResponse(c, status, message, kind))
}

func newErrorResponse(c *gin.Context, statusCode int, message, kind string) ErrorResponse {
	errorResponse := ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      statusCode,
		Kind:      kind,
		Timestamp: now(),
		Request: RequestInfo{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.RawQuery,
		},
	}

	// Add helpful suggestions for unknown routes
	if statusCode == http.StatusNotFound && kind == "" {
		if suggestions := generateNotFoundSuggestions(c.Request.URL.Path); len(suggestions) > 0 {
			errorResponse.Details = map[string]interface{}{
				"suggestions": suggestions,
				"message":     "The requested endpoint does not exist. Check the suggestions below for similar endpoints.",
			}
		}
	} else if statusCode == http.StatusMethodNotAllowed {
		errorResponse.Details = map[string]interface{}{
			"message": "The HTTP method is not supported for this endpoint.",
		}
	}
	return errorResponse
}

var commonEndpoints = []string{
	"/health",
	"/metrics",
	"/ws",
	"/api/v1/devices",
	"/api/v1/scenes",
	"/api/v1/automation/rules",
	"/api/v1/notifications",
	"/api/v1/energy/report",
	"/api/v1/homes",
	"/api/v1/settings",
	"/api/v1/system/health",
}

// generateNotFoundSuggestions lists known endpoints sharing a path segment
// with path.
func generateNotFoundSuggestions(path string) []string {
	var segments []string
	for _, s := range strings.Split(strings.ToLower(path), "/") {
		if s != "" && s != "api" && s != "v1" {
			segments = append(segments, strings.TrimSuffix(s, "s"))
		}
	}

	var suggestions []string
	seen := make(map[string]bool)
	for _, endpoint := range commonEndpoints {
		for _, seg := range segments {
			if seg != "" && strings.Contains(endpoint, seg) && !seen[endpoint] {
				seen[endpoint] = true
				suggestions = append(suggestions, endpoint)
			}
		}
		if len(suggestions) == 5 {
			break
		}
	}
	return suggestions
}

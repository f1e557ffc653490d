package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type recordedRequest struct {
	method string
	path   string
	status int
	fields logrus.Fields
}

type fakeRecorder struct {
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method: method, path: path, status: status})
}

func (f *fakeRecorder) LogRequest(method, endpoint string, status int, _ time.Duration, fields logrus.Fields) {
	f.requests = append(f.requests, recordedRequest{method: method, path: endpoint, status: status, fields: fields})
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.NoRoute(NotFoundHandler())
	r.GET("/devices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/broken", func(c *gin.Context) {
		c.Error(errors.New("backend down"))
		c.Status(http.StatusServiceUnavailable)
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestMetricsMiddlewareUsesRouteTemplates(t *testing.T) {
	rec := &fakeRecorder{}
	r := newEngine(MetricsMiddleware(rec))

	serve(r, http.MethodGet, "/devices/abc")
	serve(r, http.MethodGet, "/devices/def")
	serve(r, http.MethodGet, "/nowhere")

	require.Len(t, rec.requests, 3)
	assert.Equal(t, "/devices/:id", rec.requests[0].path)
	assert.Equal(t, "/devices/:id", rec.requests[1].path)
	assert.Equal(t, "unmatched", rec.requests[2].path)
	assert.Equal(t, http.StatusNotFound, rec.requests[2].status)
}

func TestLoggingMiddlewareCarriesErrors(t *testing.T) {
	rec := &fakeRecorder{}
	r := newEngine(LoggingMiddleware(rec))

	serve(r, http.MethodGet, "/broken")

	require.Len(t, rec.requests, 1)
	assert.Equal(t, http.StatusServiceUnavailable, rec.requests[0].status)
	assert.Contains(t, rec.requests[0].fields["error_message"], "backend down")
}

func TestErrorHandlingMiddlewareRecoversPanics(t *testing.T) {
	r := newEngine(ErrorHandlingMiddleware(logger.NewNop()))

	w := serve(r, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "wildcard echoes origin", allowed: []string{"*"}, origin: "http://tablet.local", want: "http://tablet.local"},
		{name: "listed origin", allowed: []string{"http://panel.local"}, origin: "http://panel.local", want: "http://panel.local"},
		{name: "unlisted origin", allowed: []string{"http://panel.local"}, origin: "http://evil.local", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(CORSMiddleware(tt.allowed))
			req := httptest.NewRequest(http.MethodGet, "/devices/1", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

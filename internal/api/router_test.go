package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/scenes"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	"github.com/frostdev-ops/pma-homesim/internal/smarthome"
	"github.com/frostdev-ops/pma-homesim/internal/websocket"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type envelope struct {
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Error   string                 `json:"error"`
	Code    int                    `json:"code"`
	Kind    string                 `json:"kind"`
	Details map[string]interface{} `json:"details"`
}

type testServer struct {
	app    *smarthome.App
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server:      config.ServerConfig{Mode: "test"},
		Persistence: config.PersistenceConfig{Backend: "memory"},
		Simulation:  config.SimulationConfig{Seed: 7, LinkageDelay: 10 * time.Millisecond},
		Automation:  config.AutomationConfig{Enabled: true},
		Scenes:      config.ScenesConfig{SettleDelay: time.Millisecond},
		Energy:      config.EnergyConfig{CostPerKwh: 3000, Currency: "VND"},
		Security:    config.SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"*"}},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Seed:        config.SeedConfig{SampleData: true},
	}

	log := logger.New()
	log.SetOutput(io.Discard)

	app := smarthome.New(cfg, store.NewMemoryBackend(), log.Logger)
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})

	hub := websocket.NewHub(app.Store, websocket.DefaultHubConfig(), log.Logger)
	return &testServer{app: app, router: NewRouter(cfg, app, hub, log)}
}

func (s *testServer) request(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w, env := s.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = s.request(t, http.MethodGet, "/api/v1/system/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	report := decode[map[string]interface{}](t, env.Data)
	assert.Contains(t, report["components"], "event_loop")
}

func TestDeviceEndpoints(t *testing.T) {
	s := newTestServer(t)

	w, env := s.request(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]devices.Device](t, env.Data), 6)

	_, env = s.request(t, http.MethodGet, "/api/v1/devices?type=light", nil)
	assert.Len(t, decode[[]devices.Device](t, env.Data), 2)

	w, env = s.request(t, http.MethodPost, "/api/v1/devices", map[string]interface{}{
		"name": "Desk lamp",
		"type": "light",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[struct {
		Device devices.Device `json:"device"`
	}](t, env.Data).Device
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsOnline)

	w, env = s.request(t, http.MethodPost, "/api/v1/devices/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[devices.Device](t, env.Data).IsOn)

	w, env = s.request(t, http.MethodPatch, "/api/v1/devices/"+created.ID, map[string]interface{}{"brightness": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, decode[devices.Device](t, env.Data).Brightness)

	w, _ = s.request(t, http.MethodDelete, "/api/v1/devices/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.request(t, http.MethodGet, "/api/v1/devices/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.Kind)
}

func TestDeviceValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "missing name", body: map[string]interface{}{"type": "light"}, status: http.StatusBadRequest},
		{name: "missing type", body: map[string]interface{}{"name": "Lamp"}, status: http.StatusBadRequest},
		{name: "malformed json", body: "{", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.request(t, http.MethodPost, "/api/v1/devices", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestCreateDeviceWithAutomation(t *testing.T) {
	s := newTestServer(t)
	bathroom := s.app.Devices.ByType(devices.TypeWaterHeater)[0].RoomID
	before := len(s.app.Rules.List())

	w, env := s.request(t, http.MethodPost, "/api/v1/devices", map[string]interface{}{
		"name":              "Second dryer",
		"type":              "towel_dryer",
		"roomId":            bathroom,
		"smartAutomation":   true,
		"targetTemperature": 45,
		"withAutomation":    true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decode[struct {
		Rules []json.RawMessage `json:"rules"`
	}](t, env.Data)
	assert.NotEmpty(t, created.Rules)
	assert.Len(t, s.app.Rules.List(), before+len(created.Rules))
}

func TestSceneRunAndNotifications(t *testing.T) {
	s := newTestServer(t)

	var shower scenes.Scene
	for _, sc := range s.app.Scenes.List() {
		if sc.Name == "Hot shower" {
			shower = sc
		}
	}
	require.NotEmpty(t, shower.ID)

	w, env := s.request(t, http.MethodPost, "/api/v1/scenes/"+shower.ID+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	exec := decode[scenes.Execution](t, env.Data)
	assert.True(t, exec.Ran)
	assert.Equal(t, len(shower.Actions), exec.Applied)

	_, env = s.request(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	assert.GreaterOrEqual(t, decode[map[string]int](t, env.Data)["unread"], 1)

	w, _ = s.request(t, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, s.app.Notifications.UnreadCount())

	w, env = s.request(t, http.MethodPost, "/api/v1/scenes/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.Kind)
}

func TestAutomationDocuments(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/automation/export", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "yaml")
	assert.NotEmpty(t, w.Body.String())

	w, env := s.request(t, http.MethodPost, "/api/v1/automation/validate?format=yaml", "rules: [")
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, false, result["valid"])

	w, _ = s.request(t, http.MethodPost, "/api/v1/automation/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleEnableDisable(t *testing.T) {
	s := newTestServer(t)
	rule := s.app.Rules.List()[0]

	w, env := s.request(t, http.MethodPost, "/api/v1/automation/rules/"+rule.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, env.Data)["isActive"])

	w, _ = s.request(t, http.MethodGet, "/api/v1/automation/rules/"+rule.ID+"/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.request(t, http.MethodPost, "/api/v1/automation/rules/nope/enable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnergyAndSettings(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.request(t, http.MethodGet, "/api/v1/energy/report?period=week", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.request(t, http.MethodGet, "/api/v1/energy/report?period=decade", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid", env.Kind)

	w, _ = s.request(t, http.MethodPut, "/api/v1/settings/keys/theme", map[string]interface{}{"value": "dark"})
	require.Equal(t, http.StatusOK, w.Code)

	_, env = s.request(t, http.MethodGet, "/api/v1/settings/keys/theme", nil)
	assert.Equal(t, "dark", decode[map[string]interface{}](t, env.Data)["value"])

	w, _ = s.request(t, http.MethodGet, "/api/v1/settings/keys/no.such.key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHomesAndRooms(t *testing.T) {
	s := newTestServer(t)

	w, env := s.request(t, http.MethodGet, "/api/v1/homes/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	home := decode[map[string]interface{}](t, env.Data)
	homeID := home["id"].(string)

	w, env = s.request(t, http.MethodPost, "/api/v1/homes/"+homeID+"/rooms", map[string]interface{}{"name": "Garage", "type": "garage"})
	require.Equal(t, http.StatusCreated, w.Code)
	roomID := decode[map[string]interface{}](t, env.Data)["id"].(string)

	_, env = s.request(t, http.MethodGet, "/api/v1/homes/"+homeID+"/rooms", nil)
	assert.Len(t, decode[[]json.RawMessage](t, env.Data), 5)

	w, _ = s.request(t, http.MethodDelete, "/api/v1/homes/"+homeID+"/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, env := s.request(t, http.MethodGet, "/api/v1/device", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, env.Details["suggestions"])

	w, _ = s.request(t, http.MethodPut, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "homesim_devices")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

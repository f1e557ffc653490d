package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type countingObserver struct {
	mu      sync.Mutex
	actions map[string]int
}

func (o *countingObserver) RecordWebSocketConnection(action string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions[action]++
}

func (o *countingObserver) count(action string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.actions[action]
}

type hubFixture struct {
	store    *store.Store
	hub      *Hub
	server   *httptest.Server
	observer *countingObserver
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(logger.NewNop())
	store.Define(s, "counter", func() int { return 0 })
	store.Define(s, "theme", func() string { return "light" })

	hub := NewHub(s, HubConfig{HeartbeatInterval: time.Hour}, logger.NewNop())
	observer := &countingObserver{actions: make(map[string]int)}
	hub.SetObserver(observer)
	hub.Mirror()

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", HandleWebSocketGin(hub))
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &hubFixture{store: s, hub: hub, server: server, observer: observer}
}

func (f *hubFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Message {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestConnectSendsSnapshot(t *testing.T) {
	f := newHubFixture(t)
	f.store.Set("counter", 7)

	conn := f.dial(t, "")
	welcome := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnection, welcome.Type)
	assert.NotEmpty(t, welcome.Data["client_id"])

	snapshot := readMessage(t, conn)
	require.Equal(t, MessageTypeSnapshot, snapshot.Type)
	state := snapshot.Data["state"].(map[string]interface{})
	assert.Equal(t, float64(7), state["counter"])
	assert.Equal(t, "light", state["theme"])

	assert.Equal(t, 1, f.hub.GetClientCount())
	assert.Equal(t, 1, f.observer.count("connect"))
}

func TestStoreWritesArePushed(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")
	readUntil(t, conn, MessageTypeSnapshot)

	f.store.Set("counter", 3)

	msg := readUntil(t, conn, MessageTypeStateChanged)
	assert.Equal(t, "counter", msg.Data["key"])
	assert.Equal(t, float64(3), msg.Data["value"])
}

func TestKeySubscriptionsFilterPushes(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "?key=theme")

	snapshot := readUntil(t, conn, MessageTypeSnapshot)
	state := snapshot.Data["state"].(map[string]interface{})
	assert.Len(t, state, 1)
	assert.Contains(t, state, "theme")

	f.store.Set("counter", 1)
	f.store.Set("theme", "dark")

	msg := readUntil(t, conn, MessageTypeStateChanged)
	assert.Equal(t, "theme", msg.Data["key"], "counter change must not reach a theme-only client")
	assert.Equal(t, "dark", msg.Data["value"])
}

func TestSubscribeRequestResendsSnapshot(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "?key=theme")
	readUntil(t, conn, MessageTypeSnapshot)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": MessageTypeSubscribe,
		"data": map[string]interface{}{"keys": []string{"counter"}},
	}))

	snapshot := readUntil(t, conn, MessageTypeSnapshot)
	state := snapshot.Data["state"].(map[string]interface{})
	assert.Len(t, state, 2)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MessageTypePing}))
	readUntil(t, conn, MessageTypePong)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "bogus"}))
	errMsg := readUntil(t, conn, MessageTypeError)
	assert.Contains(t, errMsg.Data["message"], "bogus")
}

func TestNotificationsArePushed(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "?key=theme")
	readUntil(t, conn, MessageTypeSnapshot)

	f.hub.Deliver(notifications.Notification{ID: "n1", Title: "Timer complete", Type: notifications.LevelInfo})

	msg := readUntil(t, conn, MessageTypeNotification)
	n := msg.Data["notification"].(map[string]interface{})
	assert.Equal(t, "n1", n["id"])
}

func TestDisconnectUnregistersClient(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")
	readUntil(t, conn, MessageTypeSnapshot)
	require.Equal(t, 1, f.hub.GetClientCount())

	conn.Close()

	require.Eventually(t, func() bool {
		return f.hub.GetClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.observer.count("disconnect"))
	assert.EqualValues(t, 1, f.hub.GetStats().TotalConnections)
}

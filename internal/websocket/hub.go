package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
)

// StateSource is the store surface the hub mirrors.
type StateSource interface {
	Keys() []string
	Get(key string) interface{}
	Subscribe(key string, fn store.Listener) func()
}

// ConnectionObserver receives connect, disconnect and message events.
type ConnectionObserver interface {
	RecordWebSocketConnection(action string)
}

// HubConfig holds the connection timing.
type HubConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
}

// DefaultHubConfig mirrors the gorilla chat example timings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:      54 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

type outbound struct {
	// key is empty for messages every client receives
	key  string
	data []byte
}

// Hub maintains the set of active clients and pushes store changes to the
// clients subscribed to the changed key.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	source   StateSource
	config   HubConfig
	observer ConnectionObserver
	logger   *logrus.Logger

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Statistics
	stats *HubStats

	unsubscribe []func()
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(source StateSource, config HubConfig, logger *logrus.Logger) *Hub {
	defaults := DefaultHubConfig()
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	if config.PingInterval <= 0 || config.PingInterval >= config.PongTimeout {
		config.PingInterval = config.PongTimeout * 9 / 10
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		source:     source,
		config:     config,
		logger:     logger,
		stats: &HubStats{
			LastActivity: time.Now(),
		},
	}
}

// SetObserver installs the connection metrics observer.
func (h *Hub) SetObserver(o ConnectionObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = o
}

func (h *Hub) observe(action string) {
	h.mu.RLock()
	o := h.observer
	h.mu.RUnlock()
	if o != nil {
		o.RecordWebSocketConnection(action)
	}
}

// Mirror subscribes to keys, or to every store key when none are given, and
// broadcasts a state_changed message after each write.
func (h *Hub) Mirror(keys ...string) {
	if len(keys) == 0 {
		keys = h.source.Keys()
	}
	for _, key := range keys {
		key := key
		unsub := h.source.Subscribe(key, func(value interface{}) {
			h.BroadcastKey(key, StateChangedMessage(key, value))
		})
		h.mu.Lock()
		h.unsubscribe = append(h.unsubscribe, unsub)
		h.mu.Unlock()
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-ticker.C:
			h.sendHeartbeat()

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	unsubs := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	for _, client := range h.GetAllClients() {
		h.unregisterClient(client)
	}
	h.logger.Info("WebSocket hub stopped")
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"remote_addr":       client.RemoteAddr,
		"connected_clients": count,
	}).Info("WebSocket client connected")
	h.observe("connect")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.trySend(welcome.ToJSON())
	client.trySend(h.snapshotFor(client).ToJSON())
}

// snapshotFor collects the current value of each key the client follows.
func (h *Hub) snapshotFor(client *Client) Message {
	keys := client.Subscriptions()
	if len(keys) == 0 {
		keys = h.source.Keys()
	}
	state := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		state[key] = h.source.Get(key)
	}
	return SnapshotMessage(state)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.close()
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.WithFields(logrus.Fields{
			"client_id":         client.ID,
			"connected_clients": count,
		}).Info("WebSocket client disconnected")
		h.observe("disconnect")
	}
}

func (h *Hub) broadcastMessage(msg outbound) {
	var slow []*Client
	sent := 0

	h.mu.Lock()
	for client := range h.clients {
		if msg.key != "" && !client.Follows(msg.key) {
			continue
		}
		if client.trySend(msg.data) {
			sent++
		} else {
			slow = append(slow, client)
		}
	}
	h.stats.MessagesSent += int64(sent)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	// Client's send channel is full, drop it
	for _, client := range slow {
		h.logger.WithField("client_id", client.ID).Warn("Dropping slow WebSocket client")
		h.unregisterClient(client)
	}

	h.logger.WithFields(logrus.Fields{
		"key":          msg.key,
		"message_size": len(msg.data),
		"clients_sent": sent,
	}).Debug("Message broadcasted to WebSocket clients")
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{
			"clients": h.GetClientCount(),
		},
	}
	h.BroadcastToAll(heartbeat)
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.Warn("Broadcast channel is full, message dropped")
	}
}

// BroadcastToAll broadcasts a message to all connected clients
func (h *Hub) BroadcastToAll(message Message) {
	h.enqueue(outbound{data: message.ToJSON()})
}

// BroadcastKey sends message to the clients following key.
func (h *Hub) BroadcastKey(key string, message Message) {
	h.enqueue(outbound{key: key, data: message.ToJSON()})
}

// Deliver pushes a new notification to every client.
func (h *Hub) Deliver(n notifications.Notification) {
	h.BroadcastToAll(NotificationMessage(n))
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetAllClients returns a copy of all connected clients
func (h *Hub) GetAllClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}

	return clients
}

// join hands a new client to Run. It reports false once the hub stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) received() {
	h.mu.Lock()
	h.stats.MessagesReceived++
	h.mu.Unlock()
	h.observe("message_received")
}

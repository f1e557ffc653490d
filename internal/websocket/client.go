package websocket

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST routes; the stream is read-only state.
		return true
	},
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client identifier
	ID string

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Hub reference
	hub *Hub

	// Logger
	logger *logrus.Logger

	// Client metadata
	UserAgent   string    `json:"user_agent"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`

	mu     sync.RWMutex
	closed bool
	// Store key subscriptions; empty follows every key
	keys map[string]bool
}

// HandleWebSocket handles websocket requests from clients
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		hub:         hub,
		logger:      hub.logger,
		UserAgent:   r.Header.Get("User-Agent"),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
		keys:        make(map[string]bool),
	}
	if keys := r.URL.Query()["key"]; len(keys) > 0 {
		client.Subscribe(keys...)
	}

	if !hub.join(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines
	go client.writePump()
	go client.readPump()
}

// HandleWebSocketGin is a Gin-compatible wrapper for HandleWebSocket
func HandleWebSocketGin(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleWebSocket(hub, c.Writer, c.Request)
	}
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is gone.
func (c *Client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	pongWait := c.hub.config.PongTimeout
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		c.hub.received()
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	writeWait := c.hub.config.WriteTimeout
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			c.hub.observe("message_sent")

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.WithError(err).Warn("Failed to unmarshal WebSocket message")
		c.trySend(ErrorMessage("invalid message").ToJSON())
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		c.Subscribe(msg.Keys()...)
		c.trySend(c.hub.snapshotFor(c).ToJSON())
	case MessageTypeUnsubscribe:
		c.Unsubscribe(msg.Keys()...)
	case MessageTypePing:
		pong := Message{Type: MessageTypePong, Data: map[string]interface{}{}}
		c.trySend(pong.ToJSON())
	default:
		c.logger.WithField("message_type", msg.Type).Warn("Unknown WebSocket message type")
		c.trySend(ErrorMessage("unknown message type: " + msg.Type).ToJSON())
	}
}

// Subscribe limits the client to the given store keys.
func (c *Client) Subscribe(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		c.keys[k] = true
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_id": c.ID,
		"keys":      keys,
	}).Debug("Client subscribed to keys")
}

func (c *Client) Unsubscribe(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.keys, k)
	}
}

// Follows reports whether changes to key reach this client.
func (c *Client) Follows(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) == 0 || c.keys[key]
}

// Subscriptions returns the explicit key subscriptions, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

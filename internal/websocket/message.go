package websocket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
)

// Message types for WebSocket communication
const (
	// Server pushes
	MessageTypeConnection   = "connection"
	MessageTypeSnapshot     = "snapshot"
	MessageTypeStateChanged = "state_changed"
	MessageTypeNotification = "notification"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"

	// Client requests
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// UnmarshalJSON accepts timestamps as RFC3339 strings or as Unix seconds or
// milliseconds, either quoted or bare. Browsers tend to send Date.now().
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data"`
		Timestamp interface{}            `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Type = raw.Type
	m.Data = raw.Data
	m.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

// unixMillisThreshold separates second and millisecond Unix timestamps.
const unixMillisThreshold = 1e11

func fromUnix(v int64) time.Time {
	if v > unixMillisThreshold {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// parseTimestamp falls back to the current time for missing or unreadable
// values.
func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return fromUnix(n)
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	case float64:
		return fromUnix(int64(t))
	case int64:
		return fromUnix(t)
	case int:
		return fromUnix(int64(t))
	}
	return time.Now().UTC()
}

// Keys returns the string list under data.keys.
func (m Message) Keys() []string {
	raw, ok := m.Data["keys"].([]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok && s != "" {
			keys = append(keys, s)
		}
	}
	return keys
}

// StateChangedMessage announces the new value of one store key.
func StateChangedMessage(key string, value interface{}) Message {
	return Message{
		Type: MessageTypeStateChanged,
		Data: map[string]interface{}{
			"key":   key,
			"value": value,
		},
	}
}

// SnapshotMessage carries the current value of every subscribed key.
func SnapshotMessage(state map[string]interface{}) Message {
	return Message{
		Type: MessageTypeSnapshot,
		Data: map[string]interface{}{
			"state": state,
		},
	}
}

// NotificationMessage pushes a single new notification.
func NotificationMessage(n notifications.Notification) Message {
	return Message{
		Type: MessageTypeNotification,
		Data: map[string]interface{}{
			"notification": n,
		},
	}
}

func ErrorMessage(msg string) Message {
	return Message{
		Type: MessageTypeError,
		Data: map[string]interface{}{
			"message": msg,
		},
	}
}

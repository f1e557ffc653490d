// Package notifications keeps the bounded, newest-first notification feed.
package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// StoreKey is the store key holding the notification list.
const StoreKey = "notifications"

// DefaultCapacity bounds the feed.
const DefaultCapacity = 100

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// SmartKind selects a device-scoped notification template.
type SmartKind string

const (
	SmartTemperatureReached  SmartKind = "temperature_reached"
	SmartEnergyHigh          SmartKind = "energy_high"
	SmartMaintenanceReminder SmartKind = "maintenance_reminder"
	SmartAutomationExecuted  SmartKind = "automation_executed"
)

// Notification is one feed entry.
type Notification struct {
	ID        string    `json:"id"`
	Type      Level     `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Icon      string    `json:"icon,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}

// Sink receives every new notification. Delivery is best-effort.
type Sink interface {
	Deliver(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Deliver(n Notification) { f(n) }

// Center stores notifications under StoreKey and fans new ones out to sinks.
type Center struct {
	store    *store.Store
	logger   *logrus.Logger
	capacity int

	mu      sync.RWMutex
	sinks   []Sink
	enabled func() bool
	now     func() time.Time
}

func NewCenter(s *store.Store, capacity int, logger *logrus.Logger) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	store.Define(s, StoreKey, func() []Notification { return []Notification{} })
	return &Center{
		store:    s,
		logger:   logger,
		capacity: capacity,
		enabled:  func() bool { return true },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddSink registers a delivery target.
func (c *Center) AddSink(sink Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, sink)
	c.mu.Unlock()
}

// SetDeliveryGate controls whether sinks are called. Notifications are stored
// either way.
func (c *Center) SetDeliveryGate(enabled func() bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

func (c *Center) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Add prepends n to the feed, trimming the oldest entries past capacity.
func (c *Center) Add(n Notification) Notification {
	c.mu.RLock()
	now := c.now()
	sinks := c.sinks
	enabled := c.enabled
	c.mu.RUnlock()

	n.ID = uuid.NewString()
	n.Timestamp = now
	n.IsRead = false
	if n.Type == "" {
		n.Type = LevelInfo
	}

	store.MutateAs(c.store, StoreKey, func(list []Notification) ([]Notification, bool) {
		size := len(list) + 1
		if size > c.capacity {
			size = c.capacity
		}
		next := make([]Notification, 0, size)
		next = append(next, n)
		next = append(next, list[:size-1]...)
		return next, true
	})

	c.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"title":           n.Title,
	}).Debug("Notification added")

	if enabled() {
		for _, sink := range sinks {
			c.deliver(sink, n)
		}
	}
	return n
}

func (c *Center) deliver(sink Sink, n Notification) {
	if err := apperrors.Recover(c.logger, "notification sink", func() { sink.Deliver(n) }); err != nil {
		c.logger.WithError(err).WithField("notification_id", n.ID).Warn("Notification delivery failed")
	}
}

// Smart builds a templated notification about d.
func (c *Center) Smart(kind SmartKind, d devices.Device) Notification {
	n := Notification{Type: LevelInfo, Icon: d.Icon, DeviceID: d.ID}
	switch kind {
	case SmartTemperatureReached:
		n.Type = LevelSuccess
		n.Title = fmt.Sprintf("%s reached its target temperature", d.Name)
		n.Message = fmt.Sprintf("Current temperature: %.1f°C", d.CurrentTemperature)
	case SmartEnergyHigh:
		n.Type = LevelWarning
		n.Title = "High energy consumption"
		n.Message = fmt.Sprintf("%s is using more energy than usual", d.Name)
	case SmartMaintenanceReminder:
		n.Title = "Maintenance reminder"
		n.Message = fmt.Sprintf("%s is due for a routine check", d.Name)
	case SmartAutomationExecuted:
		n.Type = LevelSuccess
		n.Title = "Automation executed"
		n.Message = fmt.Sprintf("%s was controlled automatically", d.Name)
	default:
		n.Title = string(kind)
		n.Message = d.Name
	}
	return c.Add(n)
}

// List returns the feed, newest first.
func (c *Center) List() []Notification {
	list := store.GetAs[[]Notification](c.store, StoreKey)
	return append([]Notification(nil), list...)
}

func (c *Center) UnreadCount() int {
	count := 0
	for _, n := range store.GetAs[[]Notification](c.store, StoreKey) {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (c *Center) MarkRead(id string) error {
	found := false
	store.MutateAs(c.store, StoreKey, func(list []Notification) ([]Notification, bool) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			found = true
			if list[i].IsRead {
				return nil, false
			}
			next := append([]Notification(nil), list...)
			next[i].IsRead = true
			return next, true
		}
		return nil, false
	})
	if !found {
		return apperrors.NotFound("notification", id)
	}
	return nil
}

func (c *Center) MarkAllRead() {
	store.MutateAs(c.store, StoreKey, func(list []Notification) ([]Notification, bool) {
		next := append([]Notification(nil), list...)
		changed := false
		for i := range next {
			if !next[i].IsRead {
				next[i].IsRead = true
				changed = true
			}
		}
		return next, changed
	})
}

func (c *Center) Delete(id string) error {
	found := false
	store.MutateAs(c.store, StoreKey, func(list []Notification) ([]Notification, bool) {
		next := make([]Notification, 0, len(list))
		for _, n := range list {
			if n.ID == id {
				found = true
				continue
			}
			next = append(next, n)
		}
		return next, found
	})
	if !found {
		return apperrors.NotFound("notification", id)
	}
	return nil
}

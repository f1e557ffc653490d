package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
)

const commandTimeout = 5 * time.Second

// Transport is the broker surface the mirror needs.
type Transport interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, h MessageHandler) error
}

// DeviceUpdater applies inbound commands.
type DeviceUpdater interface {
	Update(id string, patch devices.Patch) (devices.Device, error)
}

// Mirror publishes every device whose state changed as a retained message
// and applies JSON patches received on the command topics.
type Mirror struct {
	transport Transport
	store     *store.Store
	devices   DeviceUpdater
	executor  eventloop.Executor
	prefix    string
	logger    *logrus.Logger

	mu          sync.Mutex
	published   map[string][]byte
	unsubscribe func()
}

func NewMirror(transport Transport, s *store.Store, devs DeviceUpdater, executor eventloop.Executor, prefix string, logger *logrus.Logger) *Mirror {
	return &Mirror{
		transport: transport,
		store:     s,
		devices:   devs,
		executor:  executor,
		prefix:    prefix,
		logger:    logger,
		published: make(map[string][]byte),
	}
}

// Start publishes the current devices and follows the device list.
func (m *Mirror) Start() error {
	if err := m.transport.Subscribe(DeviceCommandFilter(m.prefix), m.handleCommand); err != nil {
		return err
	}
	m.sync(store.GetAs[[]devices.Device](m.store, devices.StoreKey))

	unsub := store.SubscribeAs(m.store, devices.StoreKey, m.sync)
	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()
	return nil
}

func (m *Mirror) Stop() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// sync publishes the devices whose JSON changed and clears the retained
// state of removed ones.
func (m *Mirror) sync(list []devices.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, d := range list {
		seen[d.ID] = true
		payload, err := json.Marshal(d)
		if err != nil {
			m.logger.WithError(err).WithField("device_id", d.ID).Warn("Failed to encode device state")
			continue
		}
		if bytes.Equal(m.published[d.ID], payload) {
			continue
		}
		if err := m.transport.Publish(DeviceStateTopic(m.prefix, d.ID), true, payload); err != nil {
			m.logger.WithError(err).WithField("device_id", d.ID).Debug("Device state not published")
			continue
		}
		m.published[d.ID] = payload
	}

	for id := range m.published {
		if seen[id] {
			continue
		}
		// An empty retained message removes the broker's copy.
		if err := m.transport.Publish(DeviceStateTopic(m.prefix, id), true, nil); err == nil {
			delete(m.published, id)
		}
	}
}

func (m *Mirror) handleCommand(topic string, payload []byte) {
	id, ok := DeviceFromCommandTopic(m.prefix, topic)
	if !ok {
		return
	}
	log := m.logger.WithFields(logrus.Fields{"device_id": id, "topic": topic})

	var values map[string]interface{}
	if err := json.Unmarshal(payload, &values); err != nil {
		log.WithError(err).Warn("Ignoring malformed MQTT command")
		return
	}
	patch, err := devices.PatchFromMap(values)
	if err != nil {
		log.WithError(err).Warn("Ignoring invalid MQTT command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	err = m.executor.Do(ctx, func() error {
		_, err := m.devices.Update(id, patch)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("MQTT command failed")
		return
	}
	log.WithField("fields", patch.Fields()).Debug("Applied MQTT command")
}

// Deliver publishes a new notification.
func (m *Mirror) Deliver(n notifications.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := m.transport.Publish(NotificationsTopic(m.prefix), false, payload); err != nil {
		m.logger.WithError(err).Debug("Notification not published")
	}
}

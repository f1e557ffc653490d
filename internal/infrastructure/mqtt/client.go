// Package mqtt mirrors device state to an MQTT broker and accepts device
// commands from it.
package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

var ErrConnectionFailed = errors.New("mqtt: connection failed")

// MessageHandler receives inbound messages. It runs on a paho goroutine.
type MessageHandler func(topic string, payload []byte)

// Client wraps paho with fire-and-forget publishing. Subscriptions are
// restored after a reconnect.
type Client struct {
	client pahomqtt.Client
	qos    byte
	status string
	logger *logrus.Logger

	mu            sync.RWMutex
	subscriptions map[string]MessageHandler
}

// Connect dials cfg.Broker and publishes a retained online status under
// <prefix>/status. The broker publishes "offline" if the process dies.
func Connect(cfg config.MQTTConfig, logger *logrus.Logger) (*Client, error) {
	c := &Client{
		qos:           byte(cfg.QoS),
		status:        StatusTopic(cfg.TopicPrefix),
		logger:        logger,
		subscriptions: make(map[string]MessageHandler),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive).
		SetWill(c.status, statusPayload("offline"), 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return c, nil
}

func (c *Client) handleConnect() {
	c.mu.RLock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, h := range c.subscriptions {
		subs[topic] = h
	}
	c.mu.RUnlock()

	for topic, h := range subs {
		c.client.Subscribe(topic, c.qos, wrap(h))
	}
	c.client.Publish(c.status, c.qos, true, statusPayload("online"))
}

func wrap(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func statusPayload(status string) string {
	return fmt.Sprintf(`{"status":%q,"timestamp":%q}`, status, time.Now().UTC().Format(time.RFC3339))
}

// Publish queues payload without waiting for the broker. Failures are
// logged.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt: not connected")
	}
	token := c.client.Publish(topic, c.qos, retained, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.logger.WithField("topic", topic).Warn("MQTT publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			c.logger.WithError(err).WithField("topic", topic).Warn("MQTT publish failed")
		}
	}()
	return nil
}

// Subscribe registers h for topic, which may contain wildcards.
func (c *Client) Subscribe(topic string, h MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = h
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.qos, wrap(h))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out", topic)
	}
	return token.Error()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() {
	if c.client.IsConnectionOpen() {
		c.client.Publish(c.status, c.qos, true, statusPayload("offline")).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
}

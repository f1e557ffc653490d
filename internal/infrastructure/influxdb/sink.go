// Package influxdb exports the hourly energy samples to InfluxDB.
package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/core/simulation"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushSeconds   = 10

	measurementDevice = "device_energy"
	measurementTotal  = "home_energy"
)

var ErrNotConnected = errors.New("influxdb: not connected")

// PointWriter is the non-blocking write surface of the client's WriteAPI.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink turns energy samples into points. Writes are batched by the client
// and never block the caller.
type Sink struct {
	writer PointWriter
	client influxdb2.Client
	homeID func() string
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

// Connect pings the server and returns a sink writing to cfg.Bucket.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *logrus.Logger) (*Sink, error) {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb server not healthy")
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.WithError(err).Warn("InfluxDB write failed")
		}
	}()

	s := NewSink(writeAPI, logger)
	s.client = client
	logger.WithFields(logrus.Fields{"url": cfg.URL, "bucket": cfg.Bucket}).Info("InfluxDB energy export enabled")
	return s, nil
}

// NewSink wraps an existing writer.
func NewSink(writer PointWriter, logger *logrus.Logger) *Sink {
	return &Sink{
		writer: writer,
		homeID: func() string { return "" },
		logger: logger,
	}
}

// SetHomeResolver tags every point with the current home.
func (s *Sink) SetHomeResolver(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.homeID = fn
}

// WriteEnergy queues one point per device reading plus a home total.
func (s *Sink) WriteEnergy(_ context.Context, sample simulation.EnergySample) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrNotConnected
	}

	home := s.homeID()
	for _, r := range sample.Readings {
		tags := map[string]string{
			"device_id":   r.DeviceID,
			"device_type": string(r.Type),
		}
		if r.RoomID != "" {
			tags["room_id"] = r.RoomID
		}
		if home != "" {
			tags["home_id"] = home
		}
		s.writer.WritePoint(write.NewPoint(measurementDevice, tags, map[string]interface{}{
			"kwh":  r.KWh,
			"name": r.Name,
		}, sample.At))
	}

	totalTags := map[string]string{}
	if home != "" {
		totalTags["home_id"] = home
	}
	s.writer.WritePoint(write.NewPoint(measurementTotal, totalTags, map[string]interface{}{
		"kwh":     sample.Total,
		"devices": len(sample.Readings),
	}, sample.At))
	return nil
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

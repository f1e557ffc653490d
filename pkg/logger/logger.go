package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestMetrics holds metrics for a specific endpoint
type RequestMetrics struct {
	Count      int           `json:"count"`
	TotalTime  time.Duration `json:"total_time"`
	MinLatency time.Duration `json:"min_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// BatchLogger wraps logrus.Logger and folds successful HTTP requests into
// periodic summaries instead of logging each one.
type BatchLogger struct {
	*logrus.Logger
	metrics    map[string]*RequestMetrics
	batchCount int
	mutex      sync.Mutex
	batchSize  int
}

// New creates a logger configured from LOG_LEVEL.
func New() *BatchLogger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
			logrus.FieldKeyFunc:  "func",
		},
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))

	return &BatchLogger{
		Logger:    log,
		metrics:   make(map[string]*RequestMetrics),
		batchSize: 100,
	}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Configure applies the level and format from configuration.
func (bl *BatchLogger) Configure(level, format string) {
	if level != "" {
		bl.SetLevel(ParseLevel(level))
	}
	if format == "text" {
		bl.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// LogRequest logs a request, batching 200 status codes
func (bl *BatchLogger) LogRequest(method, endpoint string, statusCode int, latency time.Duration, fields logrus.Fields) {
	if statusCode == 200 {
		bl.batchSuccess(method, endpoint, latency)
		return
	}

	entry := bl.WithFields(fields)
	if statusCode >= 400 {
		entry.Errorf("%s %s - Status: %d, Latency: %v", method, endpoint, statusCode, latency)
	} else {
		entry.Infof("%s %s - Status: %d, Latency: %v", method, endpoint, statusCode, latency)
	}
}

func (bl *BatchLogger) batchSuccess(method, endpoint string, latency time.Duration) {
	bl.mutex.Lock()
	defer bl.mutex.Unlock()

	key := method + " " + endpoint
	m := bl.metrics[key]
	if m == nil {
		m = &RequestMetrics{MinLatency: latency, MaxLatency: latency}
		bl.metrics[key] = m
	}

	m.Count++
	m.TotalTime += latency
	if latency < m.MinLatency {
		m.MinLatency = latency
	}
	if latency > m.MaxLatency {
		m.MaxLatency = latency
	}
	m.AvgLatency = m.TotalTime / time.Duration(m.Count)

	bl.batchCount++
	if bl.batchCount >= bl.batchSize {
		bl.flushBatch()
	}
}

func (bl *BatchLogger) flushBatch() {
	if bl.batchCount == 0 {
		return
	}

	bl.WithFields(logrus.Fields{
		"batch_summary":  true,
		"total_requests": bl.batchCount,
		"endpoints":      bl.metrics,
	}).Info("Request batch summary (200 status codes)")

	bl.metrics = make(map[string]*RequestMetrics)
	bl.batchCount = 0
}

// FlushPending forces a flush of any pending batch data
func (bl *BatchLogger) FlushPending() {
	bl.mutex.Lock()
	defer bl.mutex.Unlock()
	bl.flushBatch()
}

// Pending returns the number of batched requests not yet summarized.
func (bl *BatchLogger) Pending() int {
	bl.mutex.Lock()
	defer bl.mutex.Unlock()
	return bl.batchCount
}

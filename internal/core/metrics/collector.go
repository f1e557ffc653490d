package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
	RecordWebSocketConnection(action string)
	RecordDeviceOperation(deviceType, operation string, success bool)
	RecordDeviceCounts(total, online, on map[string]int)
	RecordAutomationExecution(ruleID string, effect bool, duration time.Duration)
	RecordSceneRun(applied, skipped int, duration time.Duration)
	RecordSnapshotSave(err error, duration time.Duration)
	RecordNotification(level string)
	RecordSystemResource(cpu, memory, disk float64)
}

// MetricsConfig contains configuration for metrics collection
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}

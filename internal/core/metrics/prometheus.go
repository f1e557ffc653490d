package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements MetricsCollector on a private registry so
// several instances can coexist in one process.
type PrometheusCollector struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket Metrics
	websocketConnections prometheus.Gauge
	websocketMessages    *prometheus.CounterVec

	// Device Metrics
	deviceOperations *prometheus.CounterVec
	devicesTotal     *prometheus.GaugeVec
	devicesOnline    *prometheus.GaugeVec
	devicesOn        *prometheus.GaugeVec

	// Automation Metrics
	automationExecutions *prometheus.CounterVec
	automationDuration   prometheus.Histogram

	// Scene Metrics
	sceneRuns     prometheus.Counter
	sceneSteps    *prometheus.CounterVec
	sceneDuration prometheus.Histogram

	// Persistence Metrics
	snapshotSaves    *prometheus.CounterVec
	snapshotDuration prometheus.Histogram

	notifications *prometheus.CounterVec

	// System Metrics
	systemCPU    prometheus.Gauge
	systemMemory prometheus.Gauge
	systemDisk   prometheus.Gauge
}

// NewPrometheusCollector creates a new Prometheus metrics collector
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = &MetricsConfig{
			Enabled: true,
			Prefix:  "homesim",
		}
	}

	prefix := config.Prefix
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	collector := &PrometheusCollector{
		config:   config,
		registry: registry,
	}

	// Initialize HTTP metrics
	collector.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	collector.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Initialize WebSocket metrics
	collector.websocketConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	collector.websocketMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"},
	)

	// Initialize Device metrics
	collector.deviceOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_device_operations_total",
			Help: "Total number of device operations",
		},
		[]string{"device_type", "operation", "success"},
	)

	collector.devicesTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_devices",
			Help: "Number of simulated devices",
		},
		[]string{"device_type"},
	)

	collector.devicesOnline = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_devices_online",
			Help: "Number of online devices",
		},
		[]string{"device_type"},
	)

	collector.devicesOn = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_devices_on",
			Help: "Number of powered devices",
		},
		[]string{"device_type"},
	)

	// Initialize Automation metrics
	collector.automationExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_automation_executions_total",
			Help: "Total number of automation rule executions",
		},
		[]string{"rule_id", "effect"},
	)

	collector.automationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_automation_execution_duration_seconds",
			Help:    "Automation rule execution time in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// Initialize Scene metrics
	collector.sceneRuns = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_scene_runs_total",
			Help: "Total number of completed scene runs",
		},
	)

	collector.sceneSteps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_scene_steps_total",
			Help: "Scene steps by outcome",
		},
		[]string{"outcome"},
	)

	collector.sceneDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_scene_run_duration_seconds",
			Help:    "Scene run duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
	)

	// Initialize Persistence metrics
	collector.snapshotSaves = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_snapshot_saves_total",
			Help: "Total number of state snapshot saves",
		},
		[]string{"success"},
	)

	collector.snapshotDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_snapshot_save_duration_seconds",
			Help:    "State snapshot save duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	collector.notifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notifications_total",
			Help: "Total number of notifications by level",
		},
		[]string{"level"},
	)

	// Initialize System metrics
	collector.systemCPU = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_cpu_usage_percent",
			Help: "System CPU usage percentage",
		},
	)

	collector.systemMemory = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_memory_usage_percent",
			Help: "System memory usage percentage",
		},
	)

	collector.systemDisk = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_disk_usage_percent",
			Help: "System disk usage percentage",
		},
	)

	return collector
}

// Registry exposes the collector's registry, for tests and extra collectors.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc exposes a value computed at scrape time.
func (p *PrometheusCollector) RegisterGaugeFunc(name, help string, fn func() float64) {
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: p.config.Prefix + "_" + name,
			Help: help,
		},
		fn,
	)
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebSocketConnection records WebSocket connection metrics
func (p *PrometheusCollector) RecordWebSocketConnection(action string) {
	if !p.config.Enabled {
		return
	}

	switch action {
	case "connect":
		p.websocketConnections.Inc()
	case "disconnect":
		p.websocketConnections.Dec()
	case "message_sent":
		p.websocketMessages.WithLabelValues("outbound").Inc()
	case "message_received":
		p.websocketMessages.WithLabelValues("inbound").Inc()
	}
}

// RecordDeviceOperation records device operation metrics
func (p *PrometheusCollector) RecordDeviceOperation(deviceType, operation string, success bool) {
	if !p.config.Enabled {
		return
	}

	p.deviceOperations.WithLabelValues(deviceType, operation, strconv.FormatBool(success)).Inc()
}

// RecordDeviceCounts replaces the per-type device gauges.
func (p *PrometheusCollector) RecordDeviceCounts(total, online, on map[string]int) {
	if !p.config.Enabled {
		return
	}

	p.devicesTotal.Reset()
	p.devicesOnline.Reset()
	p.devicesOn.Reset()
	for t, n := range total {
		p.devicesTotal.WithLabelValues(t).Set(float64(n))
		p.devicesOnline.WithLabelValues(t).Set(float64(online[t]))
		p.devicesOn.WithLabelValues(t).Set(float64(on[t]))
	}
}

// RecordAutomationExecution records automation execution metrics
func (p *PrometheusCollector) RecordAutomationExecution(ruleID string, effect bool, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.automationExecutions.WithLabelValues(ruleID, strconv.FormatBool(effect)).Inc()
	p.automationDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordSceneRun(applied, skipped int, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.sceneRuns.Inc()
	p.sceneSteps.WithLabelValues("applied").Add(float64(applied))
	p.sceneSteps.WithLabelValues("skipped").Add(float64(skipped))
	p.sceneDuration.Observe(duration.Seconds())
}

// RecordSnapshotSave records the outcome of one persistence write.
func (p *PrometheusCollector) RecordSnapshotSave(err error, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.snapshotSaves.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	p.snapshotDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordNotification(level string) {
	if !p.config.Enabled {
		return
	}

	p.notifications.WithLabelValues(level).Inc()
}

// RecordSystemResource records system resource metrics
func (p *PrometheusCollector) RecordSystemResource(cpu, memory, disk float64) {
	if !p.config.Enabled {
		return
	}

	p.systemCPU.Set(cpu)
	p.systemMemory.Set(memory)
	p.systemDisk.Set(disk)
}

package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration"`
	Components map[string]HealthStatus `json:"components"`
	SystemInfo map[string]interface{}  `json:"system_info"`
}

// CustomHealthCheck represents a custom health check function
type CustomHealthCheck func(ctx context.Context) HealthStatus

// HealthChecker runs the registered component checks plus a host resource
// check.
type HealthChecker struct {
	mu       sync.RWMutex
	checks   map[string]CustomHealthCheck
	timeout  time.Duration
	resource func(ctx context.Context) HealthStatus
	started  time.Time
}

// NewHealthChecker creates a checker whose checks each get timeout to finish.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		checks:   make(map[string]CustomHealthCheck),
		timeout:  timeout,
		resource: CheckSystemResources,
		started:  time.Now(),
	}
}

// RegisterCheck registers a named component check
func (h *HealthChecker) RegisterCheck(name string, check CustomHealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetResourceCheck replaces the host resource check.
func (h *HealthChecker) SetResourceCheck(check func(ctx context.Context) HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resource = check
}

// Components lists the registered check names, sorted.
func (h *HealthChecker) Components() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetOverallHealth returns the overall system health
func (h *HealthChecker) GetOverallHealth(ctx context.Context) HealthReport {
	start := time.Now()

	h.mu.RLock()
	checks := make(map[string]CustomHealthCheck, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	resource := h.resource
	h.mu.RUnlock()

	components := make(map[string]HealthStatus, len(checks)+1)
	for name, check := range checks {
		components[name] = h.run(ctx, check)
	}
	if resource != nil {
		components["system_resources"] = h.run(ctx, resource)
	}

	overallStatus, message := calculateOverallStatus(components)

	return HealthReport{
		Status:     overallStatus,
		Message:    message,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
		SystemInfo: h.gatherSystemInfo(),
	}
}

func (h *HealthChecker) run(ctx context.Context, check CustomHealthCheck) HealthStatus {
	start := time.Now()
	result := HealthCheckWithTimeout(ctx, h.timeout, check)
	result.Duration = time.Since(start)
	return result
}

// calculateOverallStatus determines the overall health status based on component statuses
func calculateOverallStatus(components map[string]HealthStatus) (string, string) {
	degradedCount := 0
	unhealthyCount := 0
	unknownCount := 0
	totalCount := len(components)

	for _, status := range components {
		switch status.Status {
		case StatusHealthy:
		case StatusDegraded:
			degradedCount++
		case StatusUnhealthy:
			unhealthyCount++
		default:
			unknownCount++
		}
	}

	if unhealthyCount > 0 {
		return StatusUnhealthy, fmt.Sprintf("%d/%d components unhealthy", unhealthyCount, totalCount)
	}

	if degradedCount > 0 {
		return StatusDegraded, fmt.Sprintf("%d/%d components degraded", degradedCount, totalCount)
	}

	if unknownCount > 0 {
		return StatusUnknown, fmt.Sprintf("%d/%d components unknown", unknownCount, totalCount)
	}

	return StatusHealthy, fmt.Sprintf("All %d components healthy", totalCount)
}

// gatherSystemInfo collects system information
func (h *HealthChecker) gatherSystemInfo() map[string]interface{} {
	return map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.started).String(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}
}

// ResourceUsage is a snapshot of host utilisation.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	Hostname      string  `json:"hostname,omitempty"`
	Platform      string  `json:"platform,omitempty"`
	Uptime        uint64  `json:"uptime"`
}

// SampleResources reads CPU, memory and root disk usage from the host.
func SampleResources(ctx context.Context) (ResourceUsage, error) {
	var usage ResourceUsage

	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return usage, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(percents) > 0 {
		usage.CPUPercent = percents[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("failed to get virtual memory stats: %w", err)
	}
	usage.MemoryPercent = vmem.UsedPercent

	root, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return usage, fmt.Errorf("failed to get disk usage: %w", err)
	}
	usage.DiskPercent = root.UsedPercent

	if info, err := host.InfoWithContext(ctx); err == nil {
		usage.Hostname = info.Hostname
		usage.Platform = info.Platform
		usage.Uptime = info.Uptime
	}
	return usage, nil
}

// CheckSystemResources reports degraded above 90% memory or disk use.
func CheckSystemResources(ctx context.Context) HealthStatus {
	usage, err := SampleResources(ctx)
	if err != nil {
		return NewHealthStatus(StatusUnknown, err.Error())
	}

	status := NewHealthStatus(StatusHealthy, "System resources nominal")
	if usage.MemoryPercent > 90 || usage.DiskPercent > 90 {
		status = NewHealthStatus(StatusDegraded, "System resources running low")
	}
	return status.WithDetails(map[string]interface{}{
		"cpu_percent":    usage.CPUPercent,
		"memory_percent": usage.MemoryPercent,
		"disk_percent":   usage.DiskPercent,
	})
}

// NewHealthStatus creates a new health status
func NewHealthStatus(status, message string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// WithDetails adds details to a health status
func (h HealthStatus) WithDetails(details map[string]interface{}) HealthStatus {
	if h.Details == nil {
		h.Details = make(map[string]interface{})
	}

	for k, v := range details {
		h.Details[k] = v
	}

	return h
}

// WithDetail adds a single detail to a health status
func (h HealthStatus) WithDetail(key string, value interface{}) HealthStatus {
	if h.Details == nil {
		h.Details = make(map[string]interface{})
	}

	h.Details[key] = value
	return h
}

// IsHealthy returns true if the status is healthy
func (h HealthStatus) IsHealthy() bool {
	return h.Status == StatusHealthy
}

// HealthCheckWithTimeout performs a health check with timeout
func HealthCheckWithTimeout(ctx context.Context, timeout time.Duration, check CustomHealthCheck) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan HealthStatus, 1)

	go func() {
		resultChan <- check(ctx)
	}()

	select {
	case result := <-resultChan:
		return result
	case <-ctx.Done():
		return NewHealthStatus(StatusUnhealthy, "Health check timed out").
			WithDetail("timeout", timeout.String())
	}
}

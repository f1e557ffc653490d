package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/metrics"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
	"github.com/frostdev-ops/pma-homesim/pkg/version"
)

var startedAt = time.Now()

// Health is the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"status":    "ok",
		"service":   "pma-homesim",
		"version":   version.GetVersion(),
		"timestamp": time.Now().UTC(),
	})
}

// GetSystemHealth runs every registered check plus a host resource sample.
// It answers 503 when the system is unhealthy.
func (h *Handlers) GetSystemHealth(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	report := h.app.Health.GetOverallHealth(ctx)
	if usage, err := metrics.SampleResources(ctx); err == nil {
		h.app.Metrics.RecordSystemResource(usage.CPUPercent, usage.MemoryPercent, usage.DiskPercent)
	} else {
		h.log.WithError(err).Debug("Failed to sample system resources")
	}

	if report.Status == metrics.StatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, utils.Response{
			Success:   false,
			Data:      report,
			Error:     report.Message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	utils.SendSuccess(c, report)
}

// GetSystemInfo reports build, runtime and component statistics.
func (h *Handlers) GetSystemInfo(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	utils.SendSuccess(c, gin.H{
		"build":  version.GetBuildInfo(),
		"uptime": time.Since(startedAt).Round(time.Second).String(),
		"runtime": gin.H{
			"goroutines":  runtime.NumGoroutine(),
			"heap_alloc":  mem.HeapAlloc,
			"num_gc":      mem.NumGC,
			"go_maxprocs": runtime.GOMAXPROCS(0),
		},
		"simulation": gin.H{
			"devices":       len(h.app.Devices.List()),
			"scenes":        len(h.app.Scenes.List()),
			"rules":         len(h.app.Rules.List()),
			"automation":    h.app.Engine.Enabled(),
			"dropped_tasks": h.app.Loop.Dropped(),
		},
		"scheduler": h.app.Scheduler.GetStatistics(),
		"websocket": h.hub.GetStats(),
	})
}

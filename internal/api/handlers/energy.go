package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/analytics"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

// GetEnergyReport sums consumption for ?period= (today, yesterday, week or
// month).
func (h *Handlers) GetEnergyReport(c *gin.Context) {
	report, err := h.app.Analytics.EnergyReport(analytics.Period(c.DefaultQuery("period", string(analytics.PeriodToday))))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, report)
}

// GetDetailedEnergyReport adds cost and a per-device breakdown.
func (h *Handlers) GetDetailedEnergyReport(c *gin.Context) {
	report, err := h.app.Analytics.DetailedEnergyReport(analytics.Period(c.DefaultQuery("period", string(analytics.PeriodToday))))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, report)
}

func (h *Handlers) GetEnergySummary(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"today":        h.app.Analytics.TotalToday(),
		"dailyAverage": h.app.Analytics.AverageDailyConsumption(),
	})
}

func (h *Handlers) GetEnergySuggestions(c *gin.Context) {
	utils.SendSuccess(c, h.app.Analytics.Suggestions())
}

// GetUsagePattern reports a device's peak hours over the last week.
func (h *Handlers) GetUsagePattern(c *gin.Context) {
	id := c.Param("deviceId")
	if _, err := h.app.Devices.Get(id); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, h.app.Analytics.UsagePattern(id))
}

// GetFrequentDevices lists the most used devices, capped by ?limit=.
func (h *Handlers) GetFrequentDevices(c *gin.Context) {
	list := h.app.Analytics.FrequentlyUsedDevices()
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit >= 0 && limit < len(list) {
		list = list[:limit]
	}
	utils.SendSuccess(c, list)
}

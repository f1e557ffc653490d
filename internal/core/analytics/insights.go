package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
)

// FrequentUseThreshold is the number of recorded actions above which a
// device counts as frequently used.
const FrequentUseThreshold = 5

// PatternConfidenceThreshold gates optimization suggestions from learning.
const PatternConfidenceThreshold = 0.7

// ActionCounts totals recorded actions per device across the history.
func ActionCounts(h History) map[string]int {
	counts := make(map[string]int)
	for _, day := range h {
		for id, actions := range day.DeviceActions {
			counts[id] += len(actions)
		}
	}
	return counts
}

// FrequentlyUsedDevices returns devices with more than FrequentUseThreshold
// actions, most used first.
func (t *Tracker) FrequentlyUsedDevices() []devices.Device {
	counts := ActionCounts(t.History())
	var out []devices.Device
	for _, d := range t.devices.List() {
		if counts[d.ID] > FrequentUseThreshold {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return counts[out[i].ID] > counts[out[j].ID]
	})
	return out
}

// UsagePattern analyzes the device's actions over the last seven recorded
// days.
func (t *Tracker) UsagePattern(deviceID string) UsagePattern {
	h := t.History()
	days := SortedDays(h)
	if len(days) > 7 {
		days = days[len(days)-7:]
	}

	var hourly [24]int
	total := 0
	for _, key := range days {
		for _, a := range h[key].DeviceActions[deviceID] {
			hourly[a.Timestamp.Hour()]++
			total++
		}
	}

	type bucket struct{ hour, usage int }
	var buckets []bucket
	for hour, usage := range hourly {
		if usage > 0 {
			buckets = append(buckets, bucket{hour, usage})
		}
	}
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].usage > buckets[j].usage })
	if len(buckets) > 3 {
		buckets = buckets[:3]
	}

	pattern := UsagePattern{PeakHours: []int{}, TotalUsage: total, AverageDaily: float64(total) / 7}
	for _, b := range buckets {
		pattern.PeakHours = append(pattern.PeakHours, b.hour)
	}
	if total > 10 {
		pattern.Confidence = float64(total) / 50
		if pattern.Confidence > 1 {
			pattern.Confidence = 1
		}
	}
	return pattern
}

// OptimizationSuggestions turns a learned pattern into tips for d.
func OptimizationSuggestions(d devices.Device, p UsagePattern) []Suggestion {
	var out []Suggestion
	if len(p.PeakHours) > 0 {
		hours := make([]string, len(p.PeakHours))
		for i, h := range p.PeakHours {
			hours[i] = fmt.Sprintf("%dh", h)
		}
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "schedule_optimization",
			Title:    fmt.Sprintf("Optimize the schedule for %s", d.Name),
			Message:  fmt.Sprintf("You usually use it around %s. Create an automatic schedule?", strings.Join(hours, ", ")),
			Action:   "create_smart_schedule",
			DeviceID: d.ID,
			Data:     map[string]interface{}{"peakHours": p.PeakHours},
		})
	}
	if p.AverageDaily > 5 {
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "energy_optimization",
			Title:    fmt.Sprintf("Save energy on %s", d.Name),
			Message:  fmt.Sprintf("Used %.1f times per day. Consider energy saving settings.", p.AverageDaily),
			Action:   "optimize_energy_settings",
			DeviceID: d.ID,
		})
	}
	return out
}

// Suggestions combines history based tips with device state checks.
func (t *Tracker) Suggestions() []Suggestion {
	list := t.devices.List()
	out := []Suggestion{}

	if avg := t.AverageDailyConsumption(); avg > 0 && t.TotalToday() > avg*1.2 {
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "energy",
			Title:    "Save energy",
			Message:  "Today's consumption is more than 20% above average. Create an energy saving scene?",
			Action:   "create_energy_scene",
			Priority: "high",
		})
	}

	if frequent := t.FrequentlyUsedDevices(); len(frequent) > 0 {
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "automation",
			Title:    "Smart automation",
			Message:  fmt.Sprintf("You often use %s at this time. Create a schedule?", frequent[0].Name),
			Action:   "create_schedule",
			DeviceID: frequent[0].ID,
			Priority: "medium",
		})
	}

	offline := 0
	for _, d := range list {
		if !d.IsOnline {
			offline++
		}
	}
	if offline > 0 {
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "security",
			Title:    "Check devices",
			Message:  fmt.Sprintf("%d devices are offline. Check their connection?", offline),
			Action:   "check_devices",
			Priority: "high",
		})
	}

	return append(out, t.deviceSuggestions(list)...)
}

func (t *Tracker) deviceSuggestions(list []devices.Device) []Suggestion {
	var out []Suggestion

	share := map[string]float64{}
	if report, err := t.DetailedEnergyReport(PeriodToday); err == nil {
		for _, row := range report.DeviceDetails {
			share[row.Device.ID] = row.Percentage
		}
	}

	active := 0
	for _, d := range list {
		if d.IsOn {
			active++
		}
		switch d.Type {
		case devices.TypeWaterHeater:
			if pct := share[d.ID]; pct > 30 {
				out = append(out, Suggestion{
					ID:       uuid.NewString(),
					Type:     "energy_saving",
					Title:    "Water heater energy saving",
					Message:  fmt.Sprintf("%s uses %.1f%% of total energy. Try ECO mode or a lower target temperature.", d.Name, pct),
					Action:   "optimize_water_heater",
					DeviceID: d.ID,
					Priority: "high",
				})
			}
			if d.TargetTemperature > 65 {
				out = append(out, Suggestion{
					ID:       uuid.NewString(),
					Type:     "temperature_optimization",
					Title:    "Optimize water temperature",
					Message:  fmt.Sprintf("%.0f°C may be too hot. Lowering to 60°C can save about 15%% energy.", d.TargetTemperature),
					Action:   "reduce_temperature",
					DeviceID: d.ID,
					Priority: "medium",
				})
			}
		case devices.TypeTowelDryer:
			if !d.SmartAutomation {
				out = append(out, Suggestion{
					ID:       uuid.NewString(),
					Type:     "automation",
					Title:    "Enable smart automation",
					Message:  fmt.Sprintf("Enable automation for %s to coordinate it with the water heater.", d.Name),
					Action:   "enable_smart_automation",
					DeviceID: d.ID,
					Priority: "medium",
				})
			}
		}
	}

	if hour := t.clock().Hour(); (hour >= 22 || hour <= 6) && active > 0 {
		out = append(out, Suggestion{
			ID:       uuid.NewString(),
			Type:     "schedule",
			Title:    "Night mode",
			Message:  fmt.Sprintf("%d devices are running at night. Create a schedule to turn them off?", active),
			Action:   "create_night_schedule",
			Priority: "low",
		})
	}
	return out
}

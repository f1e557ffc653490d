// Package analytics records per-day device activity and derives energy
// reports, usage patterns and suggestions from it.
package analytics

import (
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
)

// StoreKey is the store key holding the History.
const StoreKey = "analytics"

// DateLayout formats the day keys of a History.
const DateLayout = "2006-01-02"

// ActionEntry is one recorded device action.
type ActionEntry struct {
	Action    string      `json:"action"`
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// Day aggregates one calendar day.
type Day struct {
	DeviceActions     map[string][]ActionEntry `json:"deviceActions"`
	EnergyConsumption map[string]float64       `json:"energyConsumption"`
	SceneRuns         map[string]int           `json:"sceneRuns"`
	// Hourly holds sampled kWh per hour of day, when sampling ran.
	Hourly []float64 `json:"hourly,omitempty"`
}

func newDay() Day {
	return Day{
		DeviceActions:     map[string][]ActionEntry{},
		EnergyConsumption: map[string]float64{},
		SceneRuns:         map[string]int{},
	}
}

func (d Day) clone() Day {
	c := newDay()
	for id, actions := range d.DeviceActions {
		c.DeviceActions[id] = append([]ActionEntry(nil), actions...)
	}
	for id, kwh := range d.EnergyConsumption {
		c.EnergyConsumption[id] = kwh
	}
	for id, n := range d.SceneRuns {
		c.SceneRuns[id] = n
	}
	if d.Hourly != nil {
		c.Hourly = append([]float64(nil), d.Hourly...)
	}
	return c
}

// Total is the day's summed consumption.
func (d Day) Total() float64 {
	total := 0.0
	for _, kwh := range d.EnergyConsumption {
		total += kwh
	}
	return total
}

// History maps DateLayout day keys to their aggregates.
type History map[string]Day

// Period selects the window of an energy report.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
)

type HourlyPoint struct {
	Hour        int     `json:"hour"`
	Consumption float64 `json:"consumption"`
}

type DailyPoint struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

// EnergyReport sums consumption over a period. Single-day periods carry an
// hourly series, longer ones a daily series.
type EnergyReport struct {
	Period  Period             `json:"period"`
	Total   float64            `json:"total"`
	Devices map[string]float64 `json:"devices"`
	Hourly  []HourlyPoint      `json:"hourly,omitempty"`
	Daily   []DailyPoint       `json:"daily,omitempty"`
}

// DeviceEnergy is one row of a detailed report.
type DeviceEnergy struct {
	Device      devices.Device `json:"device"`
	Consumption float64        `json:"consumption"`
	Cost        float64        `json:"cost"`
	Percentage  float64        `json:"percentage"`
}

type DetailedEnergyReport struct {
	EnergyReport
	DeviceDetails []DeviceEnergy `json:"deviceDetails"`
	TotalCost     float64        `json:"totalCost"`
	Currency      string         `json:"currency"`
	AverageHourly float64        `json:"averageHourly"`
}

// Pricing converts kWh into money.
type Pricing struct {
	CostPerKwh float64
	Currency   string
}

// Suggestion is an actionable tip derived from state and history.
type Suggestion struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Action   string                 `json:"action"`
	DeviceID string                 `json:"deviceId,omitempty"`
	Priority string                 `json:"priority,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// UsagePattern summarizes when a device is used over the last week.
type UsagePattern struct {
	PeakHours    []int   `json:"peakHours"`
	TotalUsage   int     `json:"totalUsage"`
	Confidence   float64 `json:"confidence"`
	AverageDaily float64 `json:"averageDaily"`
}

// DeviceSource lists the current devices.
type DeviceSource interface {
	List() []devices.Device
}

package analytics

import (
	"sort"
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

var basePower = map[devices.DeviceType]float64{
	devices.TypeWaterHeater: 2.5,
	devices.TypeTowelDryer:  0.8,
	devices.TypeAC:          1.5,
	devices.TypeLight:       0.01,
	devices.TypeTV:          0.15,
	devices.TypeSocket:      0.1,
}

var baseConsumption = map[devices.DeviceType]float64{
	devices.TypeLight:       0.1,
	devices.TypeAC:          2.5,
	devices.TypeTV:          0.3,
	devices.TypeSocket:      0.5,
	devices.TypeSpeaker:     0.1,
	devices.TypeCamera:      0.05,
	devices.TypeLock:        0.01,
	devices.TypeSensor:      0.005,
	devices.TypeWaterHeater: 2.5,
	devices.TypeTowelDryer:  0.8,
}

// HourlyRate is the kW draw of a running device, adjusted for its mode.
func HourlyRate(d devices.Device) float64 {
	power, ok := basePower[d.Type]
	if !ok {
		power = 0.1
	}
	switch d.Type {
	case devices.TypeWaterHeater:
		switch d.Mode {
		case devices.ModeEco:
			power *= 0.7
		case devices.ModeBoost:
			power *= 1.3
		}
	case devices.TypeTowelDryer:
		if d.Mode == devices.ModeRoomHeating {
			power *= 1.2
		}
	}
	return power
}

// BaseConsumption is the typical daily kWh of a device type.
func BaseConsumption(t devices.DeviceType) float64 {
	if v, ok := baseConsumption[t]; ok {
		return v
	}
	return 0.1
}

// hourWeight shapes a day's total into an hourly curve when no samples were
// recorded: morning and evening peaks over a low night base.
func hourWeight(hour int) float64 {
	switch {
	case hour >= 6 && hour <= 8:
		return 3.5
	case hour >= 18 && hour <= 22:
		return 5
	case hour >= 9 && hour <= 17:
		return 2
	}
	return 1
}

func hourlySeries(day Day) []HourlyPoint {
	points := make([]HourlyPoint, 24)
	sampled := false
	for _, v := range day.Hourly {
		if v != 0 {
			sampled = true
			break
		}
	}

	if sampled {
		for h := range points {
			points[h] = HourlyPoint{Hour: h, Consumption: round2(day.Hourly[h])}
		}
		return points
	}

	total := day.Total()
	weightSum := 0.0
	for h := 0; h < 24; h++ {
		weightSum += hourWeight(h)
	}
	for h := range points {
		points[h] = HourlyPoint{Hour: h, Consumption: round2(total * hourWeight(h) / weightSum)}
	}
	return points
}

func (t *Tracker) dayReport(h History, date time.Time, period Period) EnergyReport {
	day := h[date.Format(DateLayout)]
	report := EnergyReport{Period: period, Devices: map[string]float64{}}
	for id, kwh := range day.EnergyConsumption {
		report.Total += kwh
		report.Devices[id] = kwh
	}
	report.Hourly = hourlySeries(day)
	return report
}

func (t *Tracker) rangeReport(h History, from, to time.Time, period Period) EnergyReport {
	report := EnergyReport{Period: period, Devices: map[string]float64{}, Daily: []DailyPoint{}}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		day := h[key]
		dayTotal := 0.0
		for id, kwh := range day.EnergyConsumption {
			dayTotal += kwh
			report.Devices[id] += kwh
		}
		report.Total += dayTotal
		report.Daily = append(report.Daily, DailyPoint{Date: key, Total: dayTotal})
	}
	return report
}

// EnergyReport sums consumption for the given period ending today.
func (t *Tracker) EnergyReport(period Period) (EnergyReport, error) {
	h := t.History()
	now := t.clock()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case PeriodToday, "":
		return t.dayReport(h, today, PeriodToday), nil
	case PeriodYesterday:
		return t.dayReport(h, today.AddDate(0, 0, -1), period), nil
	case PeriodWeek:
		return t.rangeReport(h, today.AddDate(0, 0, -6), today, period), nil
	case PeriodMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return t.rangeReport(h, first, today, period), nil
	}
	return EnergyReport{}, apperrors.Invalid("energy report", "unknown period %q", period)
}

// DetailedEnergyReport adds cost and a per-device breakdown, largest first.
// Readings for devices that no longer exist are left out of the breakdown.
func (t *Tracker) DetailedEnergyReport(period Period) (DetailedEnergyReport, error) {
	base, err := t.EnergyReport(period)
	if err != nil {
		return DetailedEnergyReport{}, err
	}

	t.mu.RLock()
	price := t.pricing()
	t.mu.RUnlock()

	byID := make(map[string]devices.Device)
	for _, d := range t.devices.List() {
		byID[d.ID] = d
	}

	details := make([]DeviceEnergy, 0, len(base.Devices))
	for id, kwh := range base.Devices {
		d, ok := byID[id]
		if !ok {
			continue
		}
		pct := 0.0
		if base.Total > 0 {
			pct = round1(kwh / base.Total * 100)
		}
		details = append(details, DeviceEnergy{
			Device:      d,
			Consumption: kwh,
			Cost:        kwh * price.CostPerKwh,
			Percentage:  pct,
		})
	}
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Consumption == details[j].Consumption {
			return details[i].Device.ID < details[j].Device.ID
		}
		return details[i].Consumption > details[j].Consumption
	})

	return DetailedEnergyReport{
		EnergyReport:  base,
		DeviceDetails: details,
		TotalCost:     base.Total * price.CostPerKwh,
		Currency:      price.Currency,
		AverageHourly: base.Total / 24,
	}, nil
}

// TotalToday is today's summed consumption.
func (t *Tracker) TotalToday() float64 {
	return t.History()[t.clock().Format(DateLayout)].Total()
}

// AverageDailyConsumption averages the daily totals over every recorded day.
func (t *Tracker) AverageDailyConsumption() float64 {
	h := t.History()
	if len(h) == 0 {
		return 0
	}
	total := 0.0
	for _, day := range h {
		total += day.Total()
	}
	return total / float64(len(h))
}

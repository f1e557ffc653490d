package automation

import (
	"fmt"
	"math"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
)

// Advanced control bands.
const (
	roomHeatingTolerance = 0.5
	nightEcoMaxTarget    = 55.0
	morningMinTarget     = 60.0
)

// maintainTemperature is a hysteresis thermostat: heat below target-tol,
// stop at or above target+tol, leave the device alone inside the band.
func (e *Engine) maintainTemperature(d devices.Device) (outcome, error) {
	return e.thermostat(d, e.config.Tolerance, false)
}

func (e *Engine) thermostat(d devices.Device, tol float64, notify bool) (outcome, error) {
	current, target := d.ThermostatReading()

	var patch devices.Patch
	var msg string
	switch {
	case current < target-tol:
		if d.IsOn {
			return outcome{}, nil
		}
		patch = devices.Patch{IsOn: devices.Bool(true), LastAutoAction: devices.String(AutoTurnOnHeating)}
		msg = fmt.Sprintf("Heating switched on (%.1f°C < %.1f°C)", current, target)
	case current >= target+tol:
		if !d.IsOn {
			return outcome{}, nil
		}
		patch = devices.Patch{IsOn: devices.Bool(false), LastAutoAction: devices.String(AutoTurnOffHeating)}
		msg = fmt.Sprintf("Heating switched off (%.1f°C > %.1f°C)", current, target)
	default:
		return outcome{}, nil
	}

	updated, err := e.devices.Update(d.ID, patch)
	if err != nil {
		return outcome{}, err
	}
	if !notify {
		return outcome{effect: true}, nil
	}
	e.automationNotice(updated, msg)
	return outcome{effect: true, notified: true}, nil
}

// advancedControl applies the per-type built-in programs: room heating and
// dry completion for towel dryers, night eco and morning boost for water
// heaters.
func (e *Engine) advancedControl(d devices.Device) (outcome, error) {
	switch d.Type {
	case devices.TypeTowelDryer:
		switch d.Mode {
		case devices.ModeRoomHeating:
			return e.thermostat(d, roomHeatingTolerance, true)
		case devices.ModeTowelDry:
			if !d.IsOn || d.CurrentTemperature < d.TargetTemperature {
				return outcome{}, nil
			}
			updated, err := e.devices.Update(d.ID, devices.Patch{
				IsOn:           devices.Bool(false),
				LastAutoAction: devices.String(AutoDryComplete),
			})
			if err != nil {
				return outcome{}, err
			}
			e.notifier.Smart(notifications.SmartTemperatureReached, updated)
			return outcome{effect: true, notified: true}, nil
		}
	case devices.TypeWaterHeater:
		return e.waterHeaterSchedule(d)
	}
	return outcome{}, nil
}

func (e *Engine) waterHeaterSchedule(d devices.Device) (outcome, error) {
	hour := e.clock().Hour()

	var patch devices.Patch
	var msg string
	switch {
	case hour >= 22 || hour <= 6:
		if d.Mode == devices.ModeEco || !d.IsOn {
			return outcome{}, nil
		}
		patch = devices.Patch{
			Mode:              devices.String(devices.ModeEco),
			TargetTemperature: devices.Float(math.Min(d.TargetTemperature, nightEcoMaxTarget)),
			LastAutoAction:    devices.String(AutoEcoModeNight),
		}
		msg = "Switched to night eco mode"
	case hour <= 8:
		if d.Mode != devices.ModeEco {
			return outcome{}, nil
		}
		patch = devices.Patch{
			Mode:              devices.String(devices.ModeAuto),
			TargetTemperature: devices.Float(math.Max(d.TargetTemperature, morningMinTarget)),
			LastAutoAction:    devices.String(AutoMorningBoost),
		}
		msg = "Preparing hot water for the morning"
	default:
		return outcome{}, nil
	}

	updated, err := e.devices.Update(d.ID, patch)
	if err != nil {
		return outcome{}, err
	}
	e.automationNotice(updated, msg)
	return outcome{effect: true, notified: true}, nil
}

func (e *Engine) automationNotice(d devices.Device, msg string) {
	e.notifier.Add(notifications.Notification{
		Type:     notifications.LevelSuccess,
		Title:    d.Name,
		Message:  msg,
		Icon:     d.Icon,
		DeviceID: d.ID,
	})
}

package automation

import (
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
)

// Preset parameters.
const (
	TowelDryTargetTemperature  = 45.0
	RoomHeatingCheckIntervalMs = 30000
)

// SetupDeviceAutomation creates the stock rules for a newly added device:
// a water heater hands over to a towel dryer in the same room, and a towel
// dryer gets auto-off and room heating rules. Other types get nothing.
func (m *Manager) SetupDeviceAutomation(d devices.Device) ([]Rule, error) {
	var presets []Rule
	switch d.Type {
	case devices.TypeWaterHeater:
		if dryer, ok := m.findInRoom(devices.TypeTowelDryer, d.RoomID); ok {
			presets = append(presets, heaterHandoverRule(d, dryer))
		}
	case devices.TypeTowelDryer:
		presets = append(presets, dryCompleteRule(d), roomHeatingRule(d))
	}

	added := make([]Rule, 0, len(presets))
	for _, r := range presets {
		rule, err := m.Add(r)
		if err != nil {
			return added, err
		}
		added = append(added, rule)
	}
	return added, nil
}

func (m *Manager) findInRoom(t devices.DeviceType, roomID string) (devices.Device, bool) {
	for _, d := range m.devices.List() {
		if d.Type == t && d.RoomID == roomID {
			return d, true
		}
	}
	return devices.Device{}, false
}

func heaterHandoverRule(heater, dryer devices.Device) Rule {
	return Rule{
		Name:        "Water heater - towel dryer handover",
		Description: "Start towel drying when the water heater switches off",
		Trigger: Trigger{
			Type:     TriggerStateChange,
			DeviceID: heater.ID,
			Property: "isOn",
			Value:    false,
		},
		Conditions: []Condition{
			{DeviceID: dryer.ID, Property: "isOnline", Operator: OpEquals, Value: true},
		},
		Actions: []Action{
			{Type: ActionDeviceControl, DeviceID: dryer.ID, Property: "isOn", Value: true},
			{Type: ActionDeviceControl, DeviceID: dryer.ID, Property: "mode", Value: devices.ModeTowelDry},
			{Type: ActionDeviceControl, DeviceID: dryer.ID, Property: "targetTemperature", Value: TowelDryTargetTemperature},
		},
		IsActive: true,
	}
}

func dryCompleteRule(dryer devices.Device) Rule {
	return Rule{
		Name:        "Towel dryer - auto off when dry",
		Description: "Switch the towel dryer off once it reaches its target in towel_dry mode",
		Trigger: Trigger{
			Type:           TriggerTemperatureReached,
			DeviceID:       dryer.ID,
			Property:       "currentTemperature",
			TargetProperty: "targetTemperature",
		},
		Conditions: []Condition{
			{DeviceID: dryer.ID, Property: "mode", Operator: OpEquals, Value: devices.ModeTowelDry},
			{DeviceID: dryer.ID, Property: "isOn", Operator: OpEquals, Value: true},
		},
		Actions: []Action{
			{Type: ActionDeviceControl, DeviceID: dryer.ID, Property: "isOn", Value: false},
			{
				Type:     ActionNotification,
				DeviceID: dryer.ID,
				Title:    "Towel drying complete",
				Message:  dryer.Name + " reached its target temperature and switched off",
				Icon:     "🔥",
			},
		},
		IsActive: true,
	}
}

func roomHeatingRule(dryer devices.Device) Rule {
	return Rule{
		Name:        "Towel dryer - maintain room temperature",
		Description: "Keep the room at its target temperature in room_heating mode",
		Trigger: Trigger{
			Type:       TriggerTemperatureCheck,
			DeviceID:   dryer.ID,
			IntervalMs: RoomHeatingCheckIntervalMs,
		},
		Conditions: []Condition{
			{DeviceID: dryer.ID, Property: "mode", Operator: OpEquals, Value: devices.ModeRoomHeating},
		},
		Actions: []Action{
			{Type: ActionTemperatureControl, DeviceID: dryer.ID, Logic: LogicMaintainTemperature},
		},
		IsActive: true,
	}
}

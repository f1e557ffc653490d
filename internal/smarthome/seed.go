package smarthome

import (
	"fmt"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/rooms"
	"github.com/frostdev-ops/pma-homesim/internal/core/scenes"
)

// sampleHistoryDays is how much synthetic analytics the seed generates.
const sampleHistoryDays = 7

// SeedSampleData creates a demo household: one home with four rooms, a linked
// water heater and towel dryer with their preset rules, a few appliances, two
// scenes and a week of energy history. It must run before the loop starts or
// as a loop task.
func (a *App) SeedSampleData() error {
	home, err := a.Rooms.AddHome(rooms.Home{
		Name:    "My Home",
		Address: "123 ABC Street, District 1",
		Rooms: []rooms.Room{
			{Name: "Living room", Type: "living_room", Icon: "🛋️"},
			{Name: "Bedroom", Type: "bedroom", Icon: "🛏️"},
			{Name: "Bathroom", Type: "bathroom", Icon: "🚿"},
			{Name: "Kitchen", Type: "kitchen", Icon: "🍳"},
		},
	})
	if err != nil {
		return err
	}
	if err := a.Rooms.SetCurrentHome(home.ID); err != nil {
		return err
	}

	room := make(map[string]string, len(home.Rooms))
	for _, r := range home.Rooms {
		room[r.Type] = r.ID
	}

	dryer, err := a.Devices.Add(devices.Device{
		Type:                   devices.TypeTowelDryer,
		Name:                   "Towel dryer",
		Icon:                   "🧺",
		RoomID:                 room["bathroom"],
		Mode:                   devices.ModeTowelDry,
		Modes:                  []string{devices.ModeTowelDry, devices.ModeRoomHeating},
		CurrentTemperature:     devices.AmbientTemperature,
		TargetTemperature:      45,
		MinTemperature:         30,
		MaxTemperature:         60,
		RoomTemperatureSensor:  true,
		CurrentRoomTemperature: devices.AmbientTemperature,
		TargetRoomTemperature:  devices.DefaultTargetRoomTemperature,
		SmartAutomation:        true,
	})
	if err != nil {
		return err
	}

	heater, err := a.Devices.Add(devices.Device{
		Type:               devices.TypeWaterHeater,
		Name:               "Water heater",
		Icon:               "🚿",
		RoomID:             room["bathroom"],
		Mode:               devices.ModeEco,
		Modes:              []string{devices.ModeAuto, devices.ModeEco, devices.ModeBoost},
		CurrentTemperature: devices.AmbientTemperature,
		TargetTemperature:  55,
		MinTemperature:     30,
		MaxTemperature:     75,
		HeatingPower:       2500,
		SmartAutomation:    true,
	})
	if err != nil {
		return err
	}

	if err := a.Devices.Link(heater.ID, dryer.ID); err != nil {
		return err
	}
	for _, d := range []devices.Device{dryer, heater} {
		if _, err := a.Rules.SetupDeviceAutomation(d); err != nil {
			return fmt.Errorf("failed to set up automation for %s: %w", d.Name, err)
		}
	}

	appliances := []devices.Device{
		{Type: devices.TypeLight, Name: "Ceiling light", Icon: "💡", RoomID: room["living_room"], Brightness: 80, Color: "#ffffff"},
		{Type: devices.TypeLight, Name: "Bedside lamp", Icon: "💡", RoomID: room["bedroom"], Brightness: 40, Color: "#ffd27f"},
		{Type: devices.TypeAC, Name: "Air conditioner", Icon: "❄️", RoomID: room["bedroom"], Mode: devices.ModeCool,
			Modes: []string{devices.ModeCool, devices.ModeHeat, devices.ModeFan, devices.ModeAuto}, Temperature: 26},
		{Type: devices.TypeTV, Name: "Smart TV", Icon: "📺", RoomID: room["living_room"]},
	}
	added := make([]devices.Device, 0, len(appliances))
	for _, d := range appliances {
		dev, err := a.Devices.Add(d)
		if err != nil {
			return err
		}
		added = append(added, dev)
	}
	ceiling, lamp, ac := added[0], added[1], added[2]

	sampleScenes := []scenes.Input{
		{
			Name:        "Hot shower",
			Icon:        "🛁",
			Description: "Heat water and warm the bathroom",
			Trigger:     scenes.Trigger{Type: scenes.TriggerManual},
			Actions: []scenes.Action{
				{DeviceID: heater.ID, Type: scenes.ActionToggle, Value: true},
				{DeviceID: heater.ID, Type: scenes.ActionMode, Value: devices.ModeBoost},
			},
		},
		{
			Name:        "Coming home",
			Icon:        "🏠",
			Description: "Lights and air conditioning on",
			Trigger:     scenes.Trigger{Type: scenes.TriggerTime, Value: "18:00-20:00"},
			Actions: []scenes.Action{
				{DeviceID: ceiling.ID, Type: scenes.ActionToggle, Value: true},
				{DeviceID: lamp.ID, Type: scenes.ActionBrightness, Value: 60},
				{DeviceID: ac.ID, Type: scenes.ActionToggle, Value: true},
				{DeviceID: ac.ID, Type: scenes.ActionTemperature, Value: 25},
			},
		},
	}
	for _, in := range sampleScenes {
		if _, err := a.Scenes.Add(in); err != nil {
			return err
		}
	}

	a.Analytics.Seed(a.Devices.List(), sampleHistoryDays, a.rng)

	a.logger.WithField("home_id", home.ID).Info("Seeded sample household")
	return nil
}

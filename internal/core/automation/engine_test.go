package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type harness struct {
	store    *store.Store
	registry *devices.Registry
	center   *notifications.Center
	engine   *Engine
	manager  *Manager
}

func newHarness(t *testing.T, config EngineConfig) *harness {
	t.Helper()
	log := logger.NewNop()
	s := store.New(log)
	reg := devices.NewRegistry(s, log)
	center := notifications.NewCenter(s, notifications.DefaultCapacity, log)
	engine := NewEngine(reg, center, eventloop.Inline{}, NewScheduler(nil, log), config, log)
	reg.OnChange(engine.ProcessDeviceStateChange)
	return &harness{
		store:    s,
		registry: reg,
		center:   center,
		engine:   engine,
		manager:  NewManager(s, engine, reg, log),
	}
}

func (h *harness) add(t *testing.T, d devices.Device) devices.Device {
	t.Helper()
	added, err := h.registry.Add(d)
	require.NoError(t, err)
	return added
}

func (h *harness) device(t *testing.T, id string) devices.Device {
	t.Helper()
	d, err := h.registry.Get(id)
	require.NoError(t, err)
	return d
}

func toggleRule(id, from string, fromValue bool, to string, toValue bool) Rule {
	return Rule{
		ID:      id,
		Name:    id,
		Trigger: Trigger{Type: TriggerStateChange, DeviceID: from, Property: "isOn", Value: fromValue},
		Actions: []Action{
			{Type: ActionDeviceControl, DeviceID: to, Property: "isOn", Value: toValue},
		},
		IsActive: true,
	}
}

func TestThermostatHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		room       float64
		isOn       bool
		wantOn     bool
		wantMarker string
	}{
		{"below band turns on", 22.9, false, true, AutoTurnOnHeating},
		{"lower edge stays off", 23.0, false, false, ""},
		{"inside band keeps heating", 24.5, true, true, ""},
		{"upper edge turns off", 25.0, true, false, AutoTurnOffHeating},
		{"above band already off", 26.0, false, false, ""},
		{"below band already on", 20.0, true, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultEngineConfig())
			dryer := h.add(t, devices.Device{
				ID:                     "td",
				Name:                   "Towel dryer",
				Type:                   devices.TypeTowelDryer,
				Mode:                   devices.ModeRoomHeating,
				IsOn:                   tt.isOn,
				RoomTemperatureSensor:  true,
				CurrentRoomTemperature: tt.room,
				TargetRoomTemperature:  24,
			})
			rule := roomHeatingRule(dryer)
			rule.ID = "heat"

			h.engine.ProcessTemperatureCheck(rule)

			got := h.device(t, "td")
			assert.Equal(t, tt.wantOn, got.IsOn)
			assert.Equal(t, tt.wantMarker, got.LastAutoAction)
		})
	}
}

func TestThermostatFallsBackToDeviceSensor(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{
		ID:                    "td",
		Name:                  "Towel dryer",
		Type:                  devices.TypeTowelDryer,
		RoomTemperatureSensor: true,
		CurrentTemperature:    60,
		TargetTemperature:     45,
	})

	result := h.engine.ExecuteRule(Rule{
		ID:      "hold",
		Name:    "Hold",
		Actions: []Action{{Type: ActionTemperatureControl, DeviceID: "td", Logic: LogicMaintainTemperature}},
	})
	assert.False(t, result.Effect)
	assert.False(t, h.device(t, "td").IsOn)
}

func TestStateChangeTransitionGating(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "td", Name: "Towel dryer", Type: devices.TypeTowelDryer, RoomID: "bath", TargetTemperature: 40})
	heater := h.add(t, devices.Device{ID: "wh", Name: "Water heater", Type: devices.TypeWaterHeater, RoomID: "bath", IsOn: true})

	rules, err := h.manager.SetupDeviceAutomation(heater)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	_, err = h.registry.Update("wh", devices.Patch{IsOn: devices.Bool(false)})
	require.NoError(t, err)

	dryer := h.device(t, "td")
	assert.True(t, dryer.IsOn)
	assert.Equal(t, devices.ModeTowelDry, dryer.Mode)
	assert.Equal(t, 45.0, dryer.TargetTemperature)

	_, err = h.registry.Update("td", devices.Patch{IsOn: devices.Bool(false)})
	require.NoError(t, err)

	// Writing isOn=false again is not a transition.
	_, err = h.registry.Update("wh", devices.Patch{IsOn: devices.Bool(false)})
	require.NoError(t, err)
	assert.False(t, h.device(t, "td").IsOn)

	stats, ok := h.engine.Stats(rules[0].ID)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats.RunCount)
	require.NotNil(t, stats.LastRun)
}

func TestConditionsGateStateChange(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "td", Name: "Towel dryer", Type: devices.TypeTowelDryer, RoomID: "bath"})
	heater := h.add(t, devices.Device{ID: "wh", Name: "Water heater", Type: devices.TypeWaterHeater, RoomID: "bath", IsOn: true})
	_, err := h.manager.SetupDeviceAutomation(heater)
	require.NoError(t, err)

	_, err = h.registry.Update("td", devices.Patch{IsOnline: devices.Bool(false)})
	require.NoError(t, err)
	_, err = h.registry.Update("wh", devices.Patch{IsOn: devices.Bool(false)})
	require.NoError(t, err)

	assert.False(t, h.device(t, "td").IsOn, "offline dryer is left alone")
}

func TestCascadeTerminates(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		wantA    bool
		wantB    bool
		wantRuns map[string]int64
	}{
		{
			name:     "rule in flight stops the cycle",
			maxDepth: 8,
			wantA:    true,
			wantB:    false,
			wantRuns: map[string]int64{"r1": 1, "r2": 1, "r3": 1, "r4": 1},
		},
		{
			name:     "depth limit stops the cycle",
			maxDepth: 2,
			wantA:    false,
			wantB:    true,
			wantRuns: map[string]int64{"r1": 1, "r2": 1, "r3": 0, "r4": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, EngineConfig{MaxDepth: tt.maxDepth})
			h.add(t, devices.Device{ID: "a", Name: "A", Type: devices.TypeLight})
			h.add(t, devices.Device{ID: "b", Name: "B", Type: devices.TypeLight})

			for _, r := range []Rule{
				toggleRule("r1", "a", true, "b", true),
				toggleRule("r2", "b", true, "a", false),
				toggleRule("r3", "a", false, "b", false),
				toggleRule("r4", "b", false, "a", true),
			} {
				require.NoError(t, h.engine.RegisterRule(r))
			}

			_, err := h.registry.Update("a", devices.Patch{IsOn: devices.Bool(true)})
			require.NoError(t, err)

			assert.Equal(t, tt.wantA, h.device(t, "a").IsOn)
			assert.Equal(t, tt.wantB, h.device(t, "b").IsOn)
			for id, want := range tt.wantRuns {
				stats, ok := h.engine.Stats(id)
				require.True(t, ok)
				assert.Equal(t, want, stats.RunCount, id)
			}
		})
	}
}

func TestDeviceControlWithoutChangeHasNoEffect(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "lamp", Name: "Lamp", Type: devices.TypeLight, IsOn: true})

	result := h.engine.ExecuteRule(Rule{
		ID:      "noop",
		Name:    "noop",
		Actions: []Action{{Type: ActionDeviceControl, DeviceID: "lamp", Property: "isOn", Value: true}},
	})

	assert.True(t, result.Executed)
	assert.False(t, result.Effect)
	list := h.center.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Automation executed", list[0].Title)
}

func TestIdleTemperatureCheckStaysSilent(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	dryer := h.add(t, devices.Device{
		ID:                     "td",
		Name:                   "Towel dryer",
		Type:                   devices.TypeTowelDryer,
		Mode:                   devices.ModeRoomHeating,
		IsOn:                   true,
		RoomTemperatureSensor:  true,
		CurrentRoomTemperature: 24.5,
		TargetRoomTemperature:  24,
	})
	rule := roomHeatingRule(dryer)
	rule.ID = "heat"

	result := h.engine.ExecuteRule(rule)
	assert.True(t, result.Executed)
	assert.False(t, result.Effect)
	assert.Empty(t, h.center.List())

	_, err := h.registry.Update("td", devices.Patch{
		IsOn:                   devices.Bool(false),
		CurrentRoomTemperature: devices.Float(20),
	})
	require.NoError(t, err)
	result = h.engine.ExecuteRule(rule)
	assert.True(t, result.Effect)
	list := h.center.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Automation executed", list[0].Title)
}

func TestExecuteRuleNotifications(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "lamp", Name: "Lamp", Type: devices.TypeLight})

	result := h.engine.ExecuteRule(Rule{
		ID:   "evening",
		Name: "Evening",
		Actions: []Action{
			{Type: ActionDeviceControl, DeviceID: "lamp", Property: "isOn", Value: true},
			{Type: ActionDeviceControl, DeviceID: "ghost", Property: "isOn", Value: true},
		},
	})
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	list := h.center.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Automation executed", list[0].Title)

	h.engine.ExecuteRule(Rule{
		ID:      "notify",
		Name:    "Notify",
		Actions: []Action{{Type: ActionNotification, Title: "Hello", Message: "World"}},
	})
	list = h.center.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Automation executed", list[0].Title)
	assert.Equal(t, "Notify ran automatically", list[0].Message)
	assert.Equal(t, "Hello", list[1].Title)
	assert.Equal(t, "🔔", list[1].Icon)
}

func TestTemperatureReachedRule(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	dryer := h.add(t, devices.Device{
		ID:                 "td",
		Name:               "Towel dryer",
		Type:               devices.TypeTowelDryer,
		Mode:               devices.ModeTowelDry,
		IsOn:               true,
		CurrentTemperature: 44,
		TargetTemperature:  45,
	})
	_, err := h.manager.SetupDeviceAutomation(dryer)
	require.NoError(t, err)

	h.engine.CheckAllRules()
	assert.True(t, h.device(t, "td").IsOn)

	_, err = h.registry.Update("td", devices.Patch{CurrentTemperature: devices.Float(45)})
	require.NoError(t, err)
	h.engine.CheckAllRules()
	h.engine.CheckAllRules()

	assert.False(t, h.device(t, "td").IsOn)
	list := h.center.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Automation executed", list[0].Title)
	assert.Equal(t, "Towel drying complete", list[1].Title)
}

func TestCompleteTowelDrying(t *testing.T) {
	tests := []struct {
		name       string
		withRules  bool
		enabled    bool
		wantMarker string
		wantTitle  string
		wantCount  int
	}{
		{"built-in without rules", false, true, AutoDryComplete, "Towel dryer reached its target temperature", 1},
		{"rule path when a rule covers the device", true, true, "", "Towel drying complete", 2},
		{"built-in while automation is paused", true, false, AutoDryComplete, "Towel dryer reached its target temperature", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultEngineConfig())
			h.engine.SetEnabledGate(func() bool { return tt.enabled })
			dryer := h.add(t, devices.Device{
				ID:                 "td",
				Name:               "Towel dryer",
				Type:               devices.TypeTowelDryer,
				Mode:               devices.ModeTowelDry,
				IsOn:               true,
				CurrentTemperature: 45,
				TargetTemperature:  45,
			})
			if tt.withRules {
				_, err := h.manager.SetupDeviceAutomation(dryer)
				require.NoError(t, err)
			}

			h.engine.CompleteTowelDrying("td")
			h.engine.CompleteTowelDrying("td")

			got := h.device(t, "td")
			assert.False(t, got.IsOn)
			assert.Equal(t, tt.wantMarker, got.LastAutoAction)
			list := h.center.List()
			require.Len(t, list, tt.wantCount, "notifications come from a single completion")
			assert.Equal(t, tt.wantTitle, list[len(list)-1].Title)
		})
	}
}

func TestCheckConditions(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "ac", Name: "AC", Type: devices.TypeAC, IsOn: true, Mode: devices.ModeCool, Temperature: 24})

	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"no conditions", nil, true},
		{"equals", []Condition{{DeviceID: "ac", Property: "mode", Operator: OpEquals, Value: "cool"}}, true},
		{"not equals", []Condition{{DeviceID: "ac", Property: "mode", Operator: OpNotEquals, Value: "cool"}}, false},
		{"greater than int literal", []Condition{{DeviceID: "ac", Property: "temperature", Operator: OpGreaterThan, Value: 20}}, true},
		{"less than", []Condition{{DeviceID: "ac", Property: "temperature", Operator: OpLessThan, Value: 20.5}}, false},
		{"read-only property", []Condition{{DeviceID: "ac", Property: "type", Operator: OpEquals, Value: "ac"}}, true},
		{"missing device", []Condition{{DeviceID: "ghost", Property: "isOn", Operator: OpEquals, Value: true}}, false},
		{"all must hold", []Condition{
			{DeviceID: "ac", Property: "isOn", Operator: OpEquals, Value: true},
			{DeviceID: "ac", Property: "mode", Operator: OpEquals, Value: "heat"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.engine.CheckConditions(tt.conds))
		})
	}
}

func TestEnabledGatePausesStateChangeRules(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "a", Name: "A", Type: devices.TypeLight})
	h.add(t, devices.Device{ID: "b", Name: "B", Type: devices.TypeLight})
	require.NoError(t, h.engine.RegisterRule(toggleRule("r1", "a", true, "b", true)))

	enabled := false
	h.engine.SetEnabledGate(func() bool { return enabled })
	_, err := h.registry.Update("a", devices.Patch{IsOn: devices.Bool(true)})
	require.NoError(t, err)
	assert.False(t, h.device(t, "b").IsOn)

	enabled = true
	_, err = h.registry.Update("a", devices.Patch{IsOn: devices.Bool(false)})
	require.NoError(t, err)
	_, err = h.registry.Update("a", devices.Patch{IsOn: devices.Bool(true)})
	require.NoError(t, err)
	assert.True(t, h.device(t, "b").IsOn)
}

func TestRegisterRuleSchedulesChecks(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	dryer := h.add(t, devices.Device{ID: "td", Name: "Towel dryer", Type: devices.TypeTowelDryer})

	rule := roomHeatingRule(dryer)
	rule.ID = "heat"
	require.NoError(t, h.engine.RegisterRule(rule))
	assert.True(t, h.engine.scheduler.Has("rule:heat"))
	assert.True(t, h.engine.HasActiveRule(TriggerTemperatureCheck, "td"))

	rule.Trigger = Trigger{Type: TriggerTemperatureReached, DeviceID: "td"}
	require.NoError(t, h.engine.RegisterRule(rule))
	assert.False(t, h.engine.scheduler.Has("rule:heat"))
	assert.Len(t, h.engine.Rules(), 1)

	rule.Trigger = Trigger{Type: TriggerTemperatureCheck, DeviceID: "td"}
	require.NoError(t, h.engine.RegisterRule(rule))
	h.engine.UnregisterRule("heat")
	assert.False(t, h.engine.scheduler.Has("rule:heat"))
	_, ok := h.engine.Rule("heat")
	assert.False(t, ok)

	assert.Error(t, h.engine.RegisterRule(Rule{ID: "bad", Name: "bad"}))
}

func TestWaterHeaterSchedule(t *testing.T) {
	tests := []struct {
		name       string
		hour       int
		mode       string
		target     float64
		wantMode   string
		wantTarget float64
		wantMarker string
	}{
		{"night switches to eco", 23, devices.ModeAuto, 65, devices.ModeEco, 55, AutoEcoModeNight},
		{"early night keeps a low target", 2, devices.ModeBoost, 50, devices.ModeEco, 50, AutoEcoModeNight},
		{"morning leaves eco", 7, devices.ModeEco, 55, devices.ModeAuto, 60, AutoMorningBoost},
		{"daytime is untouched", 14, devices.ModeEco, 55, devices.ModeEco, 55, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultEngineConfig())
			h.engine.SetClock(func() time.Time { return time.Date(2026, 3, 1, tt.hour, 30, 0, 0, time.Local) })
			h.add(t, devices.Device{
				ID:                "wh",
				Name:              "Water heater",
				Type:              devices.TypeWaterHeater,
				IsOn:              true,
				Mode:              tt.mode,
				TargetTemperature: tt.target,
			})

			h.engine.ExecuteRule(Rule{
				ID:      "schedule",
				Name:    "Schedule",
				Actions: []Action{{Type: ActionTemperatureControl, DeviceID: "wh", Logic: LogicAdvancedControl}},
			})

			got := h.device(t, "wh")
			assert.Equal(t, tt.wantMode, got.Mode)
			assert.Equal(t, tt.wantTarget, got.TargetTemperature)
			assert.Equal(t, tt.wantMarker, got.LastAutoAction)
		})
	}
}

func TestHasStateChangeRule(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "a", Name: "A", Type: devices.TypeLight})
	h.add(t, devices.Device{ID: "b", Name: "B", Type: devices.TypeLight})
	rule := toggleRule("r1", "a", false, "b", true)
	require.NoError(t, h.engine.RegisterRule(rule))

	assert.True(t, h.engine.HasStateChangeRule("a", "isOn", false))
	assert.False(t, h.engine.HasStateChangeRule("a", "isOn", true))
	assert.False(t, h.engine.HasStateChangeRule("b", "isOn", false))

	rule.IsActive = false
	require.NoError(t, h.engine.RegisterRule(rule))
	assert.False(t, h.engine.HasStateChangeRule("a", "isOn", false))
}

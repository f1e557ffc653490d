package automation

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

func TestScheduler(t *testing.T) {
	scheduler := NewScheduler(&SchedulerConfig{Timezone: "UTC"}, logger.NewNop())

	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()
	assert.True(t, scheduler.IsRunning())
	assert.Error(t, scheduler.Start())

	var runs atomic.Int32
	require.NoError(t, scheduler.Every("tick", time.Second, func() { runs.Add(1) }))
	require.NoError(t, scheduler.ScheduleSpec("hourly", "@hourly", func() {}))

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	jobs := scheduler.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "hourly", jobs[0].ID)
	assert.Equal(t, "tick", jobs[1].ID)

	stats := scheduler.GetStatistics()
	assert.Equal(t, 2, stats["scheduled_jobs"])
	assert.Equal(t, "UTC", stats["timezone"])

	scheduler.Unschedule("tick")
	scheduler.Unschedule("tick")
	assert.False(t, scheduler.Has("tick"))
	assert.Equal(t, 1, scheduler.GetStatistics()["cron_entries"])
}

func TestSchedulerRejectsBadJobs(t *testing.T) {
	scheduler := NewScheduler(nil, logger.NewNop())

	assert.Error(t, scheduler.Every("zero", 0, func() {}))
	assert.Error(t, scheduler.ScheduleSpec("", "@hourly", func() {}))
	assert.Error(t, scheduler.ScheduleSpec("bad", "not a spec", func() {}))
	assert.Error(t, scheduler.ScheduleSpec("nil", "@hourly", nil))
	assert.Error(t, scheduler.Stop())

	require.NoError(t, scheduler.Every("job", time.Minute, func() {}))
	require.NoError(t, scheduler.Every("job", time.Hour, func() {}))
	jobs := scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Spec)
}

const yamlRules = `
rules:
  - name: Evening lights
    trigger:
      type: device_state_change
      deviceId: door
      property: isOn
      value: true
    actions:
      - type: device_control
        deviceId: lamp
        property: brightness
        value: 80
  - name: Paused
    isActive: false
    trigger:
      type: device_temperature_check
      deviceId: td
      interval: 60000
    actions:
      - type: temperature_control
        deviceId: td
        logic: maintain_temperature
`

func TestRuleParser(t *testing.T) {
	parser := NewRuleParser()

	rules, err := parser.ParseFromYAML([]byte(yamlRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "Evening lights", rules[0].Name)
	assert.True(t, rules[0].IsActive, "rules default to active")
	assert.Equal(t, TriggerStateChange, rules[0].Trigger.Type)
	assert.True(t, devices.ValuesEqual(80, rules[0].Actions[0].Value))
	assert.NotNil(t, rules[0].Conditions)

	assert.False(t, rules[1].IsActive)
	assert.Equal(t, time.Minute, rules[1].Trigger.Interval(0))

	single, err := parser.Parse([]byte(`{"name":"One","trigger":{"type":"device_temperature_reached","deviceId":"td"},"actions":[]}`), "json")
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "One", single[0].Name)

	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"missing name", `{"trigger":{},"actions":[]}`, "json"},
		{"missing trigger", `{"name":"x","actions":[]}`, "json"},
		{"broken yaml", "rules: [", "yaml"},
		{"scalar document", `"hello"`, "json"},
		{"unknown format", `{}`, "toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestValidateRuleSyntax(t *testing.T) {
	parser := NewRuleParser()

	result := parser.ValidateRuleSyntax([]byte(yamlRules), "yaml")
	assert.True(t, result.Valid, "%+v", result.Errors)

	result = parser.ValidateRuleSyntax([]byte(`{"name":"x","trigger":{"type":"sunrise"},"actions":[]}`), "json")
	assert.False(t, result.Valid)
	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "rules[0].trigger.type")
	assert.Contains(t, fields, "rules[0].actions")
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{
		ID:      "r",
		Name:    "r",
		Trigger: Trigger{Type: TriggerStateChange, DeviceID: "a", Property: "isOn", Value: true},
		Actions: []Action{{Type: ActionDeviceControl, DeviceID: "b", Property: "mode", Value: "eco"}},
	}
	require.True(t, valid.Validate().Valid)

	tests := []struct {
		name   string
		mutate func(r *Rule)
	}{
		{"unknown trigger property", func(r *Rule) { r.Trigger.Property = "colour" }},
		{"missing trigger value", func(r *Rule) { r.Trigger.Value = nil }},
		{"read-only action property", func(r *Rule) { r.Actions[0].Property = "type" }},
		{"wrong action value type", func(r *Rule) { r.Actions[0].Value = 3 }},
		{"bad operator", func(r *Rule) {
			r.Conditions = []Condition{{DeviceID: "a", Property: "isOn", Operator: "between", Value: true}}
		}},
		{"bad logic", func(r *Rule) {
			r.Actions = []Action{{Type: ActionTemperatureControl, DeviceID: "a", Logic: "vibes"}}
		}},
		{"empty notification", func(r *Rule) { r.Actions = []Action{{Type: ActionNotification}} }},
		{"no actions", func(r *Rule) { r.Actions = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid.Clone()
			tt.mutate(&r)
			result := r.Validate()
			assert.False(t, result.Valid)
			assert.True(t, apperrors.IsInvalid(result.Err()))
		})
	}
}

func TestManagerCRUD(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	h.add(t, devices.Device{ID: "a", Name: "A", Type: devices.TypeLight})
	h.add(t, devices.Device{ID: "b", Name: "B", Type: devices.TypeLight})

	draft := toggleRule("evening", "a", true, "b", true)
	draft.ID = ""
	rule, err := h.manager.Add(draft)
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
	_, ok := h.engine.Rule(rule.ID)
	assert.True(t, ok)

	_, err = h.manager.Add(Rule{ID: rule.ID, Name: "dup"})
	assert.True(t, apperrors.IsInvalid(err))
	_, err = h.manager.Add(Rule{Name: "broken"})
	assert.True(t, apperrors.IsInvalid(err))
	assert.Len(t, h.manager.List(), 1)

	paused, err := h.manager.SetActive(rule.ID, false)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	require.NotNil(t, paused.UpdatedAt)
	cached, _ := h.engine.Rule(rule.ID)
	assert.False(t, cached.IsActive)

	_, err = h.manager.Update(rule.ID, RulePatch{Actions: &[]Action{}})
	assert.True(t, apperrors.IsInvalid(err))
	stored, err := h.manager.Get(rule.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Actions, 1, "rejected update leaves the rule alone")

	require.NoError(t, h.manager.Delete(rule.ID))
	assert.True(t, apperrors.IsNotFound(h.manager.Delete(rule.ID)))
	_, ok = h.engine.Rule(rule.ID)
	assert.False(t, ok)
	_, err = h.manager.Get(rule.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestManagerRemoveDevice(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	for _, id := range []string{"a", "b", "c"} {
		h.add(t, devices.Device{ID: id, Name: id, Type: devices.TypeLight})
	}

	triggeredByC, err := h.manager.Add(toggleRule("by-c", "c", true, "a", true))
	require.NoError(t, err)
	onlyC := toggleRule("only-c", "a", true, "c", true)
	_, err = h.manager.Add(onlyC)
	require.NoError(t, err)
	mixed := toggleRule("mixed", "a", false, "b", false)
	mixed.Actions = append(mixed.Actions, Action{Type: ActionDeviceControl, DeviceID: "c", Property: "isOn", Value: false})
	mixed.Conditions = []Condition{{DeviceID: "c", Property: "isOnline", Operator: OpEquals, Value: true}}
	_, err = h.manager.Add(mixed)
	require.NoError(t, err)
	_, err = h.manager.Add(toggleRule("untouched", "a", true, "b", true))
	require.NoError(t, err)

	h.manager.RemoveDevice("c")

	rules := h.manager.List()
	require.Len(t, rules, 2)
	assert.Equal(t, "mixed", rules[0].ID)
	assert.Len(t, rules[0].Actions, 1)
	assert.Empty(t, rules[0].Conditions)
	assert.Equal(t, "untouched", rules[1].ID)

	_, ok := h.engine.Rule(triggeredByC.ID)
	assert.False(t, ok)
	_, ok = h.engine.Rule("only-c")
	assert.False(t, ok)
	cached, ok := h.engine.Rule("mixed")
	require.True(t, ok)
	assert.Len(t, cached.Actions, 1)
}

func TestManagerRestoreAll(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())
	dryer := h.add(t, devices.Device{ID: "td", Name: "Towel dryer", Type: devices.TypeTowelDryer})
	_, err := h.manager.SetupDeviceAutomation(dryer)
	require.NoError(t, err)

	data, err := h.store.MarshalState()
	require.NoError(t, err)
	var snapshot map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &snapshot))

	fresh := newHarness(t, DefaultEngineConfig())
	fresh.store.Restore(snapshot)
	assert.Empty(t, fresh.engine.Rules())

	assert.Equal(t, 2, fresh.manager.RestoreAll())
	rules := fresh.engine.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, TriggerTemperatureReached, rules[0].Trigger.Type)
	assert.Equal(t, 30*time.Second, rules[1].Trigger.Interval(0))
	assert.True(t, fresh.engine.scheduler.Has("rule:"+rules[1].ID))
}

func TestManagerImportExport(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())

	added, err := h.manager.Import([]byte(yamlRules), "yaml")
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Len(t, h.manager.List(), 2)

	out, err := h.manager.Export()
	require.NoError(t, err)

	other := newHarness(t, DefaultEngineConfig())
	reimported, err := other.manager.Import(out, "yaml")
	require.NoError(t, err)
	require.Len(t, reimported, 2)
	assert.Equal(t, "Paused", reimported[1].Name)
	assert.False(t, reimported[1].IsActive)

	_, err = h.manager.Import([]byte(`{"name":"x","trigger":{"type":"nope"},"actions":[]}`), "json")
	assert.True(t, apperrors.IsInvalid(err))
	assert.Len(t, h.manager.List(), 2)
}

func TestSetupDeviceAutomationPresets(t *testing.T) {
	h := newHarness(t, DefaultEngineConfig())

	lonelyHeater := h.add(t, devices.Device{ID: "wh", Name: "Water heater", Type: devices.TypeWaterHeater, RoomID: "bath"})
	rules, err := h.manager.SetupDeviceAutomation(lonelyHeater)
	require.NoError(t, err)
	assert.Empty(t, rules, "no towel dryer in the room")

	lamp := h.add(t, devices.Device{ID: "lamp", Name: "Lamp", Type: devices.TypeLight})
	rules, err = h.manager.SetupDeviceAutomation(lamp)
	require.NoError(t, err)
	assert.Empty(t, rules)

	dryer := h.add(t, devices.Device{ID: "td", Name: "Towel dryer", Type: devices.TypeTowelDryer, RoomID: "bath"})
	rules, err = h.manager.SetupDeviceAutomation(dryer)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, TriggerTemperatureReached, rules[0].Trigger.Type)
	assert.Equal(t, TriggerTemperatureCheck, rules[1].Trigger.Type)

	rules, err = h.manager.SetupDeviceAutomation(lonelyHeater)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "td", rules[0].Conditions[0].DeviceID)
	assert.Len(t, store.GetAs[[]Rule](h.store, StoreKey), 3)
}

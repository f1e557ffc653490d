package devices

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

func TestPatchSet(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   interface{}
		wantErr bool
	}{
		{"bool", "isOn", true, false},
		{"int from float", "brightness", 80.0, false},
		{"float from int", "targetTemperature", 45, false},
		{"json number", "targetTemperature", json.Number("45.5"), false},
		{"string", "mode", "eco", false},
		{"string list", "linkedDevices", []interface{}{"a", "b"}, false},
		{"wrong type", "isOn", "yes", true},
		{"numeric string is not a number", "brightness", "80", true},
		{"read-only", "type", "light", true},
		{"unknown", "warpDrive", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Patch
			err := p.Set(tt.field, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsInvalid(err))
				assert.True(t, p.IsEmpty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.field}, p.Fields())
		})
	}
}

func TestPatchApply(t *testing.T) {
	d := Device{ID: "td", Type: TypeTowelDryer, Mode: ModeRoomHeating, TargetTemperature: 30}

	p, err := PatchFromMap(map[string]interface{}{
		"isOn":              true,
		"mode":              ModeTowelDry,
		"targetTemperature": 45,
	})
	require.NoError(t, err)
	p.Apply(&d)

	assert.True(t, d.IsOn)
	assert.Equal(t, ModeTowelDry, d.Mode)
	assert.Equal(t, 45.0, d.TargetTemperature)
	assert.Equal(t, []string{"isOn", "mode", "targetTemperature"}, p.Fields())

	v, ok := p.Value("targetTemperature")
	require.True(t, ok)
	assert.True(t, ValuesEqual(45, v))
	assert.False(t, p.Has("brightness"))
}

func TestPatchJSON(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"isOn":false,"brightness":40}`), &p))
	require.NotNil(t, p.IsOn)
	assert.False(t, *p.IsOn)
	assert.Equal(t, []string{"brightness", "isOn"}, p.Fields())
}

func TestLookup(t *testing.T) {
	d := Device{ID: "x", Type: TypeAC, Temperature: 24}

	v, ok := Lookup(d, "type")
	require.True(t, ok)
	assert.Equal(t, "ac", v)

	v, ok = d.Property("temperature")
	require.True(t, ok)
	assert.Equal(t, 24.0, v)

	_, ok = Lookup(d, "nope")
	assert.False(t, ok)
}

func TestValueComparison(t *testing.T) {
	assert.True(t, ValuesEqual(1, 1.0))
	assert.True(t, ValuesEqual("eco", "eco"))
	assert.False(t, ValuesEqual("1", 1))
	assert.True(t, ValuesEqual(true, true))

	cmp, ok := CompareValues(45.0, 40)
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	_, ok = CompareValues("hot", 40)
	assert.False(t, ok)

	assert.Equal(t, 22.3, Round1(22.34))
}

func TestThermostatReading(t *testing.T) {
	tests := []struct {
		name       string
		device     Device
		wantCur    float64
		wantTarget float64
	}{
		{"water heater", Device{CurrentTemperature: 40, TargetTemperature: 55}, 40, 55},
		{"room sensor", Device{RoomTemperatureSensor: true, CurrentRoomTemperature: 21, TargetRoomTemperature: 23, CurrentTemperature: 40}, 21, 23},
		{"room default target", Device{CurrentRoomTemperature: 21}, 21, DefaultTargetRoomTemperature},
		{"room sensor without reading", Device{RoomTemperatureSensor: true, CurrentTemperature: 60, TargetTemperature: 45}, 60, 45},
		{"room reading with device target", Device{CurrentRoomTemperature: 21, TargetTemperature: 45}, 21, 45},
		{"device reading with room target", Device{CurrentTemperature: 30, TargetRoomTemperature: 26, TargetTemperature: 45}, 30, 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, target := tt.device.ThermostatReading()
			assert.Equal(t, tt.wantCur, cur)
			assert.Equal(t, tt.wantTarget, target)
		})
	}
}

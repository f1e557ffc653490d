package devices

import "time"

// DeviceType identifies the simulated hardware category.
type DeviceType string

const (
	TypeLight       DeviceType = "light"
	TypeAC          DeviceType = "ac"
	TypeTV          DeviceType = "tv"
	TypeSocket      DeviceType = "socket"
	TypeSpeaker     DeviceType = "speaker"
	TypeCamera      DeviceType = "camera"
	TypeLock        DeviceType = "lock"
	TypeSensor      DeviceType = "sensor"
	TypeWaterHeater DeviceType = "water_heater"
	TypeTowelDryer  DeviceType = "towel_dryer"
)

// Modes per device type.
const (
	ModeAuto        = "auto"
	ModeEco         = "eco"
	ModeBoost       = "boost"
	ModeTowelDry    = "towel_dry"
	ModeRoomHeating = "room_heating"
	ModeCool        = "cool"
	ModeHeat        = "heat"
	ModeFan         = "fan"
)

// AmbientTemperature is the resting temperature devices relax toward.
const AmbientTemperature = 22.0

// DefaultTargetRoomTemperature applies when a towel dryer has no room target.
const DefaultTargetRoomTemperature = 24.0

// Device is one simulated unit. Zero-valued type-specific fields simply do
// not apply to that device type.
type Device struct {
	ID           string     `json:"id"`
	HomeID       string     `json:"homeId"`
	RoomID       string     `json:"roomId"`
	Type         DeviceType `json:"type"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`

	IsOn       bool `json:"isOn"`
	IsOnline   bool `json:"isOnline"`
	IsFavorite bool `json:"isFavorite"`

	Brightness int      `json:"brightness,omitempty"`
	Color      string   `json:"color,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Modes      []string `json:"modes,omitempty"`

	Temperature            float64 `json:"temperature,omitempty"`
	CurrentTemperature     float64 `json:"currentTemperature,omitempty"`
	TargetTemperature      float64 `json:"targetTemperature,omitempty"`
	MinTemperature         float64 `json:"minTemperature,omitempty"`
	MaxTemperature         float64 `json:"maxTemperature,omitempty"`
	RoomTemperatureSensor  bool    `json:"roomTemperatureSensor,omitempty"`
	CurrentRoomTemperature float64 `json:"currentRoomTemperature,omitempty"`
	TargetRoomTemperature  float64 `json:"targetRoomTemperature,omitempty"`
	HeatingPower           float64 `json:"heatingPower,omitempty"`

	EnergyConsumption float64 `json:"energyConsumption"`
	RemainingTime     int     `json:"remainingTime"`

	LinkedDevices   []string `json:"linkedDevices,omitempty"`
	SmartAutomation bool     `json:"smartAutomation"`
	FirmwareVersion string   `json:"firmwareVersion,omitempty"`

	LastAction     *time.Time `json:"lastAction,omitempty"`
	LastAutoAction string     `json:"lastAutoAction,omitempty"`
	LastUpdated    time.Time  `json:"lastUpdated"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsHeater reports whether the device runs the thermal model.
func (d Device) IsHeater() bool {
	return d.Type == TypeWaterHeater || d.Type == TypeTowelDryer
}

// IsLinkedTo reports whether id is in the device's linked list.
func (d Device) IsLinkedTo(id string) bool {
	for _, linked := range d.LinkedDevices {
		if linked == id {
			return true
		}
	}
	return false
}

// Property returns the named property value, false for unknown names.
func (d Device) Property(name string) (interface{}, bool) {
	return Lookup(d, name)
}

// ThermostatReading returns the current/target pair used for temperature
// control. Each room value wins when set and falls back to the device's own
// sensor or target otherwise.
func (d Device) ThermostatReading() (current, target float64) {
	current = d.CurrentTemperature
	if d.CurrentRoomTemperature != 0 {
		current = d.CurrentRoomTemperature
	}
	target = d.TargetTemperature
	if d.TargetRoomTemperature != 0 {
		target = d.TargetRoomTemperature
	}
	if target == 0 && d.CurrentRoomTemperature != 0 {
		target = DefaultTargetRoomTemperature
	}
	return current, target
}

func (d Device) clone() Device {
	c := d
	c.Capabilities = cloneStrings(d.Capabilities)
	c.Modes = cloneStrings(d.Modes)
	c.LinkedDevices = cloneStrings(d.LinkedDevices)
	if d.LastAction != nil {
		t := *d.LastAction
		c.LastAction = &t
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

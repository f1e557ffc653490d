package devices

import (
	"sort"
	"time"
)

// Patch is a partial device update. Nil fields are left untouched.
type Patch struct {
	Name                   *string   `json:"name,omitempty"`
	RoomID                 *string   `json:"roomId,omitempty"`
	IsOn                   *bool     `json:"isOn,omitempty"`
	IsOnline               *bool     `json:"isOnline,omitempty"`
	IsFavorite             *bool     `json:"isFavorite,omitempty"`
	Brightness             *int      `json:"brightness,omitempty"`
	Color                  *string   `json:"color,omitempty"`
	Mode                   *string   `json:"mode,omitempty"`
	Temperature            *float64  `json:"temperature,omitempty"`
	CurrentTemperature     *float64  `json:"currentTemperature,omitempty"`
	TargetTemperature      *float64  `json:"targetTemperature,omitempty"`
	MinTemperature         *float64  `json:"minTemperature,omitempty"`
	MaxTemperature         *float64  `json:"maxTemperature,omitempty"`
	CurrentRoomTemperature *float64  `json:"currentRoomTemperature,omitempty"`
	TargetRoomTemperature  *float64  `json:"targetRoomTemperature,omitempty"`
	HeatingPower           *float64  `json:"heatingPower,omitempty"`
	EnergyConsumption      *float64  `json:"energyConsumption,omitempty"`
	RemainingTime          *int      `json:"remainingTime,omitempty"`
	LinkedDevices          *[]string `json:"linkedDevices,omitempty"`
	SmartAutomation        *bool     `json:"smartAutomation,omitempty"`
	LastAutoAction         *string   `json:"lastAutoAction,omitempty"`

	LastAction *time.Time `json:"lastAction,omitempty"`
}

// Helpers for building patches inline.
func Bool(v bool) *bool            { return &v }
func Int(v int) *int               { return &v }
func Float(v float64) *float64     { return &v }
func String(v string) *string      { return &v }
func Strings(v []string) *[]string { return &v }

// property binds one named device field to its patch counterpart.
type property struct {
	device func(d *Device) interface{}
	patch  func(p *Patch) (interface{}, bool)
	set    func(p *Patch, v interface{}) bool
	apply  func(d *Device, p *Patch)
}

func bind[T any](dev func(*Device) *T, pat func(*Patch) **T, conv func(interface{}) (T, bool)) property {
	return property{
		device: func(d *Device) interface{} { return *dev(d) },
		patch: func(p *Patch) (interface{}, bool) {
			v := *pat(p)
			if v == nil {
				return nil, false
			}
			return *v, true
		},
		set: func(p *Patch, v interface{}) bool {
			t, ok := conv(v)
			if !ok {
				return false
			}
			*pat(p) = &t
			return true
		},
		apply: func(d *Device, p *Patch) {
			if v := *pat(p); v != nil {
				*dev(d) = *v
			}
		},
	}
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asFloat(v interface{}) (float64, bool) {
	if !isNumber(v) {
		return 0, false
	}
	return ToFloat(v)
}

func asInt(v interface{}) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asStrings(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

var properties = map[string]property{}

func define[T any](name string, dev func(*Device) *T, pat func(*Patch) **T, conv func(interface{}) (T, bool)) {
	properties[name] = bind(dev, pat, conv)
}

func init() {
	define("name", func(d *Device) *string { return &d.Name }, func(p *Patch) **string { return &p.Name }, asString)
	define("roomId", func(d *Device) *string { return &d.RoomID }, func(p *Patch) **string { return &p.RoomID }, asString)
	define("isOn", func(d *Device) *bool { return &d.IsOn }, func(p *Patch) **bool { return &p.IsOn }, asBool)
	define("isOnline", func(d *Device) *bool { return &d.IsOnline }, func(p *Patch) **bool { return &p.IsOnline }, asBool)
	define("isFavorite", func(d *Device) *bool { return &d.IsFavorite }, func(p *Patch) **bool { return &p.IsFavorite }, asBool)
	define("brightness", func(d *Device) *int { return &d.Brightness }, func(p *Patch) **int { return &p.Brightness }, asInt)
	define("color", func(d *Device) *string { return &d.Color }, func(p *Patch) **string { return &p.Color }, asString)
	define("mode", func(d *Device) *string { return &d.Mode }, func(p *Patch) **string { return &p.Mode }, asString)
	define("temperature", func(d *Device) *float64 { return &d.Temperature }, func(p *Patch) **float64 { return &p.Temperature }, asFloat)
	define("currentTemperature", func(d *Device) *float64 { return &d.CurrentTemperature }, func(p *Patch) **float64 { return &p.CurrentTemperature }, asFloat)
	define("targetTemperature", func(d *Device) *float64 { return &d.TargetTemperature }, func(p *Patch) **float64 { return &p.TargetTemperature }, asFloat)
	define("minTemperature", func(d *Device) *float64 { return &d.MinTemperature }, func(p *Patch) **float64 { return &p.MinTemperature }, asFloat)
	define("maxTemperature", func(d *Device) *float64 { return &d.MaxTemperature }, func(p *Patch) **float64 { return &p.MaxTemperature }, asFloat)
	define("currentRoomTemperature", func(d *Device) *float64 { return &d.CurrentRoomTemperature }, func(p *Patch) **float64 { return &p.CurrentRoomTemperature }, asFloat)
	define("targetRoomTemperature", func(d *Device) *float64 { return &d.TargetRoomTemperature }, func(p *Patch) **float64 { return &p.TargetRoomTemperature }, asFloat)
	define("heatingPower", func(d *Device) *float64 { return &d.HeatingPower }, func(p *Patch) **float64 { return &p.HeatingPower }, asFloat)
	define("energyConsumption", func(d *Device) *float64 { return &d.EnergyConsumption }, func(p *Patch) **float64 { return &p.EnergyConsumption }, asFloat)
	define("remainingTime", func(d *Device) *int { return &d.RemainingTime }, func(p *Patch) **int { return &p.RemainingTime }, asInt)
	define("linkedDevices", func(d *Device) *[]string { return &d.LinkedDevices }, func(p *Patch) **[]string { return &p.LinkedDevices }, asStrings)
	define("smartAutomation", func(d *Device) *bool { return &d.SmartAutomation }, func(p *Patch) **bool { return &p.SmartAutomation }, asBool)
	define("lastAutoAction", func(d *Device) *string { return &d.LastAutoAction }, func(p *Patch) **string { return &p.LastAutoAction }, asString)

	for name := range properties {
		propertyNames = append(propertyNames, name)
	}
	sort.Strings(propertyNames)
}

// readOnly fields can be read by rules but never patched.
var readOnly = map[string]func(d *Device) interface{}{
	"id":                    func(d *Device) interface{} { return d.ID },
	"type":                  func(d *Device) interface{} { return string(d.Type) },
	"homeId":                func(d *Device) interface{} { return d.HomeID },
	"roomTemperatureSensor": func(d *Device) interface{} { return d.RoomTemperatureSensor },
}

var propertyNames []string

// IsProperty reports whether name can be patched.
func IsProperty(name string) bool {
	_, ok := properties[name]
	return ok
}

// Set assigns a named property, converting numeric values as needed.
func (p *Patch) Set(name string, value interface{}) error {
	prop, ok := properties[name]
	if !ok {
		if _, ro := readOnly[name]; ro {
			return invalid("%s: %v", name, ErrReadOnlyField)
		}
		return invalid("%s: %v", name, ErrUnknownProperty)
	}
	if !prop.set(p, value) {
		return invalid("%s=%v: %v", name, value, ErrInvalidValue)
	}
	return nil
}

// Value returns the patched value of name, if set.
func (p Patch) Value(name string) (interface{}, bool) {
	prop, ok := properties[name]
	if !ok {
		return nil, false
	}
	return prop.patch(&p)
}

// Has reports whether the patch sets name.
func (p Patch) Has(name string) bool {
	_, ok := p.Value(name)
	return ok
}

// Fields lists the property names the patch sets, sorted.
func (p Patch) Fields() []string {
	var fields []string
	for _, name := range propertyNames {
		if _, ok := properties[name].patch(&p); ok {
			fields = append(fields, name)
		}
	}
	return fields
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0 && p.LastAction == nil
}

// Apply writes every set field onto d.
func (p Patch) Apply(d *Device) {
	for _, name := range propertyNames {
		properties[name].apply(d, &p)
	}
	if p.LinkedDevices != nil {
		d.LinkedDevices = cloneStrings(d.LinkedDevices)
	}
	if p.LastAction != nil {
		t := *p.LastAction
		d.LastAction = &t
	}
}

// PatchFromMap builds a patch from loosely typed property values.
func PatchFromMap(values map[string]interface{}) (Patch, error) {
	var p Patch
	for name, v := range values {
		if err := p.Set(name, v); err != nil {
			return Patch{}, err
		}
	}
	return p, nil
}

// Lookup reads any named device property, including read-only ones.
func Lookup(d Device, name string) (interface{}, bool) {
	if prop, ok := properties[name]; ok {
		return prop.device(&d), true
	}
	if get, ok := readOnly[name]; ok {
		return get(&d), true
	}
	return nil, false
}

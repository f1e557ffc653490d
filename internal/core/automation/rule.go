package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// TriggerType selects how a rule is started.
type TriggerType string

const (
	TriggerStateChange        TriggerType = "device_state_change"
	TriggerTemperatureReached TriggerType = "device_temperature_reached"
	TriggerTemperatureCheck   TriggerType = "device_temperature_check"
)

// Operator compares a live device value with a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// ActionType selects what an action does.
type ActionType string

const (
	ActionDeviceControl      ActionType = "device_control"
	ActionTemperatureControl ActionType = "temperature_control"
	ActionNotification       ActionType = "notification"
)

// Temperature control logics.
const (
	LogicMaintainTemperature = "maintain_temperature"
	LogicAdvancedControl     = "advanced_control"
)

// DefaultCheckInterval applies to temperature_check triggers without an
// interval.
const DefaultCheckInterval = 30 * time.Second

// Trigger starts a rule.
type Trigger struct {
	Type     TriggerType `json:"type"`
	DeviceID string      `json:"deviceId"`
	Property string      `json:"property,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	// TargetProperty is informational for temperature_reached triggers.
	TargetProperty string `json:"targetProperty,omitempty"`
	// IntervalMs is the check period of temperature_check triggers.
	IntervalMs int64 `json:"interval,omitempty"`
}

// Interval returns the check period, or fallback when unset.
func (t Trigger) Interval(fallback time.Duration) time.Duration {
	if t.IntervalMs > 0 {
		return time.Duration(t.IntervalMs) * time.Millisecond
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultCheckInterval
}

// Condition must hold for the rule to run.
type Condition struct {
	DeviceID string      `json:"deviceId"`
	Property string      `json:"property"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Action is one step of a rule.
type Action struct {
	Type     ActionType  `json:"type"`
	DeviceID string      `json:"deviceId,omitempty"`
	Property string      `json:"property,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Logic    string      `json:"logic,omitempty"`
	Title    string      `json:"title,omitempty"`
	Message  string      `json:"message,omitempty"`
	Icon     string      `json:"icon,omitempty"`
}

// Rule is a declarative trigger, conditions and actions tuple.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Trigger     Trigger     `json:"trigger"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
}

// RuleValidationError represents validation errors for rules
type RuleValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RuleValidationResult contains validation results
type RuleValidationResult struct {
	Valid  bool                  `json:"valid"`
	Errors []RuleValidationError `json:"errors,omitempty"`
}

func (r *RuleValidationResult) add(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, RuleValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err folds the result into an Invalid domain error, nil when valid.
func (r *RuleValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return apperrors.Invalid("rule", "%s", strings.Join(msgs, "; "))
}

// Validate performs comprehensive validation of the rule
func (r *Rule) Validate() *RuleValidationResult {
	result := &RuleValidationResult{Valid: true, Errors: []RuleValidationError{}}

	if r.ID == "" {
		result.add("id", "Rule ID is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		result.add("name", "Rule name is required")
	}

	switch r.Trigger.Type {
	case TriggerStateChange:
		if !devices.IsProperty(r.Trigger.Property) {
			result.add("trigger.property", "unknown device property %q", r.Trigger.Property)
		}
		if r.Trigger.Value == nil {
			result.add("trigger.value", "a value is required")
		}
	case TriggerTemperatureReached, TriggerTemperatureCheck:
		if r.Trigger.IntervalMs < 0 {
			result.add("trigger.interval", "interval must not be negative")
		}
	default:
		result.add("trigger.type", "unsupported trigger type %q", r.Trigger.Type)
	}
	if r.Trigger.DeviceID == "" {
		result.add("trigger.deviceId", "a device is required")
	}

	for i, c := range r.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if c.DeviceID == "" {
			result.add(field, "a device is required")
		}
		if _, ok := devices.Lookup(devices.Device{}, c.Property); !ok {
			result.add(field, "unknown device property %q", c.Property)
		}
		switch c.Operator {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan:
		default:
			result.add(field, "unsupported operator %q", c.Operator)
		}
	}

	if len(r.Actions) == 0 {
		result.add("actions", "At least one action is required")
	}
	for i, a := range r.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		switch a.Type {
		case ActionDeviceControl:
			if a.DeviceID == "" {
				result.add(field, "a device is required")
			}
			var p devices.Patch
			if err := p.Set(a.Property, a.Value); err != nil {
				result.add(field, "%v", err)
			}
		case ActionTemperatureControl:
			if a.DeviceID == "" {
				result.add(field, "a device is required")
			}
			if a.Logic != LogicMaintainTemperature && a.Logic != LogicAdvancedControl {
				result.add(field, "unsupported logic %q", a.Logic)
			}
		case ActionNotification:
			if a.Title == "" && a.Message == "" {
				result.add(field, "a title or message is required")
			}
		default:
			result.add(field, "unsupported action type %q", a.Type)
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}
	return result
}

// Clone creates a deep copy of the rule
func (r Rule) Clone() Rule {
	data, _ := json.Marshal(r)
	var clone Rule
	_ = json.Unmarshal(data, &clone)
	return clone
}

// References reports whether the rule mentions the device anywhere.
func (r Rule) References(deviceID string) bool {
	if r.Trigger.DeviceID == deviceID {
		return true
	}
	for _, c := range r.Conditions {
		if c.DeviceID == deviceID {
			return true
		}
	}
	for _, a := range r.Actions {
		if a.DeviceID == deviceID {
			return true
		}
	}
	return false
}

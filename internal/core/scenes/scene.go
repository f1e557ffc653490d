// Package scenes stores user scenes and runs their device actions in order.
package scenes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// StoreKey is the store key holding the scene list.
const StoreKey = "scenes"

// ActionType names a scene step.
type ActionType string

const (
	ActionToggle      ActionType = "toggle"
	ActionBrightness  ActionType = "brightness"
	ActionTemperature ActionType = "temperature"
	ActionColor       ActionType = "color"
	ActionMode        ActionType = "mode"
)

// actionProperty maps scene step types onto device properties.
var actionProperty = map[ActionType]string{
	ActionToggle:      "isOn",
	ActionBrightness:  "brightness",
	ActionTemperature: "targetTemperature",
	ActionColor:       "color",
	ActionMode:        "mode",
}

// Trigger types.
const (
	TriggerManual = "manual"
	TriggerTime   = "time"
)

type Action struct {
	DeviceID string      `json:"deviceId"`
	Type     ActionType  `json:"type"`
	Value    interface{} `json:"value"`
}

// Trigger describes when a scene starts. Time triggers carry "HH:MM" or a
// "HH:MM-HH:MM" window whose start is used.
type Trigger struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Scene is a named, ordered list of device actions.
type Scene struct {
	ID          string     `json:"id"`
	HomeID      string     `json:"homeId,omitempty"`
	Name        string     `json:"name"`
	Icon        string     `json:"icon,omitempty"`
	Description string     `json:"description,omitempty"`
	Trigger     Trigger    `json:"trigger"`
	Actions     []Action   `json:"actions"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	LastRun     *time.Time `json:"lastRun"`
}

// Input creates a scene. IsActive defaults to true.
type Input struct {
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	Description string   `json:"description,omitempty"`
	Trigger     Trigger  `json:"trigger"`
	Actions     []Action `json:"actions"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// Patch updates the editable scene fields.
type Patch struct {
	Name        *string   `json:"name,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	Description *string   `json:"description,omitempty"`
	Trigger     *Trigger  `json:"trigger,omitempty"`
	Actions     *[]Action `json:"actions,omitempty"`
	IsActive    *bool     `json:"isActive,omitempty"`
}

// Execution reports the outcome of one Run.
type Execution struct {
	SceneID    string    `json:"sceneId"`
	Ran        bool      `json:"ran"`
	Applied    int       `json:"applied"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (s Scene) clone() Scene {
	c := s
	c.Actions = append([]Action(nil), s.Actions...)
	if c.Actions == nil {
		c.Actions = []Action{}
	}
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

// patchFor converts a scene action into a device patch. ok is false for
// step types scenes do not know.
func patchFor(a Action, now time.Time) (patch devices.Patch, ok bool, err error) {
	property, known := actionProperty[a.Type]
	if !known {
		return devices.Patch{}, false, nil
	}
	if err := patch.Set(property, a.Value); err != nil {
		return devices.Patch{}, true, err
	}
	patch.LastAction = &now
	return patch, true, nil
}

// cronSpec converts a time trigger into a six-field cron expression.
func (t Trigger) cronSpec() (string, error) {
	if t.Type != TriggerTime {
		return "", apperrors.Invalid("scene", "trigger %q is not time based", t.Type)
	}
	start := strings.TrimSpace(strings.SplitN(t.Value, "-", 2)[0])
	parts := strings.Split(start, ":")
	if len(parts) != 2 {
		return "", apperrors.Invalid("scene", "time trigger %q must be HH:MM", t.Value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", apperrors.Invalid("scene", "invalid hour in %q", t.Value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", apperrors.Invalid("scene", "invalid minute in %q", t.Value)
	}
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

package preferences

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Manager reads and writes the Settings record in the store.
type Manager struct {
	store  *store.Store
	logger *logrus.Logger
}

// NewManager registers the settings default with s.
func NewManager(s *store.Store, defaults Settings, logger *logrus.Logger) *Manager {
	store.Define(s, StoreKey, func() Settings { return defaults })
	return &Manager{store: s, logger: logger}
}

func (m *Manager) Get() Settings {
	return store.GetAs[Settings](m.store, StoreKey)
}

// Update shallow-merges patch into the settings. Top-level sections present
// in patch replace the stored section as a whole.
func (m *Manager) Update(patch map[string]interface{}) (Settings, error) {
	if len(patch) == 0 {
		return m.Get(), nil
	}
	candidate, err := merged(m.Get(), patch)
	if err != nil {
		return Settings{}, err
	}
	if err := validate(candidate); err != nil {
		return Settings{}, err
	}
	m.store.Update(StoreKey, patch)
	return m.Get(), nil
}

// GetPreference retrieves a specific preference value by dotted key path
func (m *Manager) GetPreference(key string) (interface{}, error) {
	settingsMap, err := toMap(m.Get())
	if err != nil {
		return nil, err
	}

	parts := strings.Split(key, ".")
	current := settingsMap
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, apperrors.NotFound("preference", key)
		}
		if i == len(parts)-1 {
			return v, nil
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil, apperrors.NotFound("preference", key)
		}
		current = next
	}
	return nil, apperrors.NotFound("preference", key)
}

// SetPreference sets a specific preference value by dotted key path
func (m *Manager) SetPreference(key string, value interface{}) (Settings, error) {
	settingsMap, err := toMap(m.Get())
	if err != nil {
		return Settings{}, err
	}

	parts := strings.Split(key, ".")
	current := settingsMap
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return Settings{}, apperrors.NotFound("preference", key)
		}
		current = next
	}
	if _, ok := current[parts[len(parts)-1]]; !ok {
		return Settings{}, apperrors.NotFound("preference", key)
	}
	current[parts[len(parts)-1]] = value

	var next Settings
	if err := fromMap(settingsMap, &next); err != nil {
		return Settings{}, apperrors.Invalid("preference", "%s: %v", key, err)
	}
	if err := validate(next); err != nil {
		return Settings{}, err
	}
	m.store.Set(StoreKey, next)
	return next, nil
}

// ResetToDefaults restores the default settings.
func (m *Manager) ResetToDefaults() Settings {
	defaults := DefaultSettings()
	m.store.Set(StoreKey, defaults)
	return defaults
}

type export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Settings   *Settings `json:"settings"`
}

// Export serializes the settings with a version header.
func (m *Manager) Export() ([]byte, error) {
	s := m.Get()
	return json.MarshalIndent(export{Version: "1.0", ExportedAt: time.Now().UTC(), Settings: &s}, "", "  ")
}

// Import replaces the settings with a previous Export.
func (m *Manager) Import(data []byte) (Settings, error) {
	var in export
	if err := json.Unmarshal(data, &in); err != nil {
		return Settings{}, apperrors.Invalid("preference", "failed to unmarshal import data: %v", err)
	}
	if in.Settings == nil {
		return Settings{}, apperrors.Invalid("preference", "no settings found in import data")
	}
	if in.Version != "1.0" {
		m.logger.WithField("version", in.Version).Warn("Unknown import version, proceeding anyway")
	}
	if err := validate(*in.Settings); err != nil {
		return Settings{}, err
	}
	m.store.Set(StoreKey, *in.Settings)
	return *in.Settings, nil
}

// AutomationEnabled reports the automation.enabled switch.
func (m *Manager) AutomationEnabled() bool {
	return m.Get().Automation.Enabled
}

// NotificationsEnabled reports the notifications.enabled switch.
func (m *Manager) NotificationsEnabled() bool {
	return m.Get().Notifications.Enabled
}

func validate(s Settings) error {
	switch s.Theme {
	case "light", "dark", "auto":
	default:
		return apperrors.Invalid("preference", "unknown theme %q", s.Theme)
	}
	if s.Energy.CostPerKwh < 0 {
		return apperrors.Invalid("preference", "energy.costPerKwh must not be negative")
	}
	return nil
}

func merged(current Settings, patch map[string]interface{}) (Settings, error) {
	m, err := toMap(current)
	if err != nil {
		return Settings{}, err
	}
	for k, v := range patch {
		m[k] = v
	}
	var out Settings
	if err := fromMap(m, &out); err != nil {
		return Settings{}, apperrors.Invalid("preference", "%v", err)
	}
	return out, nil
}

func toMap(s Settings) (map[string]interface{}, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return out, nil
}

func fromMap(m map[string]interface{}, out *Settings) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

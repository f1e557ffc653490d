package preferences

// StoreKey is the store key holding Settings.
const StoreKey = "settings"

// Settings is the single household settings record.
type Settings struct {
	Theme         string                  `json:"theme"` // light, dark, auto
	Language      string                  `json:"language"`
	Notifications NotificationPreferences `json:"notifications"`
	Voice         VoicePreferences        `json:"voice"`
	AutoUpdate    AutoUpdatePreferences   `json:"autoUpdate"`
	Energy        EnergyPreferences       `json:"energy"`
	Automation    AutomationPreferences   `json:"automation"`
}

// NotificationPreferences contains notification settings
type NotificationPreferences struct {
	Enabled    bool              `json:"enabled"`
	Sound      bool              `json:"sound"`
	Vibration  bool              `json:"vibration"`
	Types      NotificationTypes `json:"types"`
	QuietHours QuietHoursConfig  `json:"quietHours"`
}

type NotificationTypes struct {
	Warnings    bool `json:"warnings"`
	Scenes      bool `json:"scenes"`
	Updates     bool `json:"updates"`
	Analytics   bool `json:"analytics"`
	Activities  bool `json:"activities"`
	Suggestions bool `json:"suggestions"`
}

// QuietHoursConfig defines when to suppress notifications
type QuietHoursConfig struct {
	Enabled       bool   `json:"enabled"`
	Start         string `json:"start"` // HH:MM
	End           string `json:"end"`   // HH:MM
	EmergencyOnly bool   `json:"emergencyOnly"`
}

type VoicePreferences struct {
	Enabled       bool   `json:"enabled"`
	Sensitivity   string `json:"sensitivity"`
	Language      string `json:"language"`
	ResponseVoice string `json:"responseVoice"`
	TimeoutMs     int    `json:"timeout"`
	MuteResponse  bool   `json:"muteResponse"`
}

type AutoUpdatePreferences struct {
	App           bool `json:"app"`
	Devices       bool `json:"devices"`
	WifiOnly      bool `json:"wifiOnly"`
	WhileCharging bool `json:"whileCharging"`
}

// EnergyPreferences prices consumption and sets alerting goals.
type EnergyPreferences struct {
	CostPerKwh     float64 `json:"costPerKwh"`
	Currency       string  `json:"currency"`
	AlertThreshold float64 `json:"alertThreshold"` // % of average
	SavingsGoal    float64 `json:"savingsGoal"`    // % reduction target
}

// AutomationPreferences gates the rule engine and background learning.
type AutomationPreferences struct {
	Enabled                bool `json:"enabled"`
	LearningMode           bool `json:"learningMode"`
	AggressiveOptimization bool `json:"aggressiveOptimization"`
	MaintenanceReminders   bool `json:"maintenanceReminders"`
}

// DefaultSettings returns the settings used before any user change.
func DefaultSettings() Settings {
	return Settings{
		Theme:    "auto",
		Language: "vi",
		Notifications: NotificationPreferences{
			Enabled:   true,
			Sound:     true,
			Vibration: true,
			Types: NotificationTypes{
				Warnings:    true,
				Scenes:      true,
				Updates:     true,
				Activities:  true,
				Suggestions: true,
			},
			QuietHours: QuietHoursConfig{Enabled: true, Start: "22:00", End: "07:00"},
		},
		Voice: VoicePreferences{
			Enabled:       true,
			Sensitivity:   "medium",
			Language:      "vi-VN",
			ResponseVoice: "female",
			TimeoutMs:     5000,
		},
		AutoUpdate: AutoUpdatePreferences{App: true, Devices: true, WifiOnly: true},
		Energy: EnergyPreferences{
			CostPerKwh:     3000,
			Currency:       "VND",
			AlertThreshold: 150,
			SavingsGoal:    20,
		},
		Automation: AutomationPreferences{
			Enabled:              true,
			LearningMode:         true,
			MaintenanceReminders: true,
		},
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
	Simulation    SimulationConfig    `mapstructure:"simulation"`
	Automation    AutomationConfig    `mapstructure:"automation"`
	Scenes        ScenesConfig        `mapstructure:"scenes"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Energy        EnergyConfig        `mapstructure:"energy"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Security      SecurityConfig      `mapstructure:"security"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	InfluxDB      InfluxDBConfig      `mapstructure:"influxdb"`
	Discovery     DiscoveryConfig     `mapstructure:"discovery"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PersistenceConfig selects where the store snapshot is written.
type PersistenceConfig struct {
	Backend      string        `mapstructure:"backend"` // memory, file, sqlite, redis
	SnapshotName string        `mapstructure:"snapshot_name"`
	Compress     bool          `mapstructure:"compress"`
	Timeout      time.Duration `mapstructure:"timeout"`
	File         FileConfig    `mapstructure:"file"`
	SQLite       SQLiteConfig  `mapstructure:"sqlite"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

type SQLiteConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SimulationConfig holds the cadence of the physical model.
type SimulationConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	TemperatureStep    time.Duration `mapstructure:"temperature_step"`
	DeviceTick         time.Duration `mapstructure:"device_tick"`
	RuleSweep          time.Duration `mapstructure:"rule_sweep"`
	StatusSweep        time.Duration `mapstructure:"status_sweep"`
	EnergySample       time.Duration `mapstructure:"energy_sample"`
	EnergyAlert        time.Duration `mapstructure:"energy_alert"`
	UsageLearning      time.Duration `mapstructure:"usage_learning"`
	AmbientTemperature float64       `mapstructure:"ambient_temperature"`
	LinkageDelay       time.Duration `mapstructure:"linkage_delay"`
	OfflineProbability float64       `mapstructure:"offline_probability"`
	Seed               int64         `mapstructure:"seed"`
}

type AutomationConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	DefaultCheckInterval time.Duration `mapstructure:"default_check_interval"`
	Tolerance            float64       `mapstructure:"tolerance"`
	MaxCascadeDepth      int           `mapstructure:"max_cascade_depth"`
	RulesFile            string        `mapstructure:"rules_file"`
}

type ScenesConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type NotificationsConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type EnergyConfig struct {
	CostPerKwh float64 `mapstructure:"cost_per_kwh"`
	Currency   string  `mapstructure:"currency"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type SecurityConfig struct {
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Prefix  string `mapstructure:"prefix"`
}

// MQTTConfig controls the outbound device state mirror.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

type InfluxDBConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	Bucket        string `mapstructure:"bucket"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval"` // seconds
}

type DiscoveryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Instance string `mapstructure:"instance"`
	Service  string `mapstructure:"service"`
	Domain   string `mapstructure:"domain"`
}

type SeedConfig struct {
	SampleData bool `mapstructure:"sample_data"`
}

// Load reads .env, config.yaml and the environment into a Config.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("HOMESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "PORT")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("persistence.backend", "HOMESIM_PERSISTENCE_BACKEND")
	v.BindEnv("persistence.sqlite.path", "DATABASE_PATH")
	v.BindEnv("persistence.redis.addr", "REDIS_ADDR")
	v.BindEnv("persistence.redis.password", "REDIS_PASSWORD")
	v.BindEnv("mqtt.password", "MQTT_PASSWORD")
	v.BindEnv("influxdb.token", "INFLUXDB_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration for completeness and correctness
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		errors = append(errors, "server.host is required")
	}

	switch c.Persistence.Backend {
	case "memory":
	case "file":
		if c.Persistence.File.Dir == "" {
			errors = append(errors, "persistence.file.dir is required for the file backend")
		}
	case "sqlite":
		if c.Persistence.SQLite.Path == "" {
			errors = append(errors, "persistence.sqlite.path is required for the sqlite backend")
		}
	case "redis":
		if c.Persistence.Redis.Addr == "" {
			errors = append(errors, "persistence.redis.addr is required for the redis backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("persistence.backend %q is not supported", c.Persistence.Backend))
	}
	if c.Persistence.SnapshotName == "" {
		errors = append(errors, "persistence.snapshot_name is required")
	}

	if c.Simulation.Enabled {
		intervals := map[string]time.Duration{
			"simulation.temperature_step": c.Simulation.TemperatureStep,
			"simulation.device_tick":      c.Simulation.DeviceTick,
			"simulation.rule_sweep":       c.Simulation.RuleSweep,
			"simulation.status_sweep":     c.Simulation.StatusSweep,
			"simulation.energy_sample":    c.Simulation.EnergySample,
			"simulation.energy_alert":     c.Simulation.EnergyAlert,
			"simulation.usage_learning":   c.Simulation.UsageLearning,
		}
		for name, d := range intervals {
			if d < time.Second {
				errors = append(errors, fmt.Sprintf("%s must be at least 1s", name))
			}
		}
	}
	if c.Simulation.OfflineProbability < 0 || c.Simulation.OfflineProbability > 1 {
		errors = append(errors, "simulation.offline_probability must be between 0 and 1")
	}

	if c.Automation.Tolerance <= 0 {
		errors = append(errors, "automation.tolerance must be greater than 0")
	}
	if c.Automation.MaxCascadeDepth <= 0 {
		errors = append(errors, "automation.max_cascade_depth must be greater than 0")
	}
	if c.Notifications.Capacity <= 0 {
		errors = append(errors, "notifications.capacity must be greater than 0")
	}
	if c.Energy.CostPerKwh < 0 {
		errors = append(errors, "energy.cost_per_kwh cannot be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errors = append(errors, "mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errors = append(errors, "mqtt.qos must be 0, 1 or 2")
		}
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errors = append(errors, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "development")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Persistence defaults
	v.SetDefault("persistence.backend", "sqlite")
	v.SetDefault("persistence.snapshot_name", "smarthome_state")
	v.SetDefault("persistence.compress", false)
	v.SetDefault("persistence.timeout", "2s")
	v.SetDefault("persistence.file.dir", "./data")
	v.SetDefault("persistence.sqlite.path", "./data/homesim.db")
	v.SetDefault("persistence.sqlite.max_connections", 1)
	v.SetDefault("persistence.sqlite.auto_migrate", true)
	v.SetDefault("persistence.redis.addr", "localhost:6379")
	v.SetDefault("persistence.redis.db", 0)

	// Simulation defaults
	v.SetDefault("simulation.enabled", true)
	v.SetDefault("simulation.temperature_step", "5s")
	v.SetDefault("simulation.device_tick", "1s")
	v.SetDefault("simulation.rule_sweep", "10s")
	v.SetDefault("simulation.status_sweep", "30s")
	v.SetDefault("simulation.energy_sample", "1h")
	v.SetDefault("simulation.energy_alert", "5m")
	v.SetDefault("simulation.usage_learning", "1h")
	v.SetDefault("simulation.ambient_temperature", 22.0)
	v.SetDefault("simulation.linkage_delay", "2s")
	v.SetDefault("simulation.offline_probability", 0.05)
	v.SetDefault("simulation.seed", 0)

	// Automation defaults
	v.SetDefault("automation.enabled", true)
	v.SetDefault("automation.default_check_interval", "30s")
	v.SetDefault("automation.tolerance", 1.0)
	v.SetDefault("automation.max_cascade_depth", 8)
	v.SetDefault("automation.rules_file", "")

	v.SetDefault("scenes.settle_delay", "200ms")
	v.SetDefault("notifications.capacity", 100)

	v.SetDefault("energy.cost_per_kwh", 3000.0)
	v.SetDefault("energy.currency", "VND")

	// WebSocket defaults
	v.SetDefault("websocket.ping_interval", 30)
	v.SetDefault("websocket.pong_timeout", 60)
	v.SetDefault("websocket.write_timeout", 10)

	v.SetDefault("security.enable_cors", true)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.prefix", "homesim")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "homesim")
	v.SetDefault("mqtt.topic_prefix", "homesim")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.org", "homesim")
	v.SetDefault("influxdb.bucket", "energy")
	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval", 10)

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.instance", "homesim")
	v.SetDefault("discovery.service", "_homesim._tcp")
	v.SetDefault("discovery.domain", "local.")

	v.SetDefault("seed.sample_data", true)
}

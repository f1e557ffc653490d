package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.AddConfigPath(t.TempDir())
	v.SetConfigName("config")

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Persistence.Backend)
	assert.Equal(t, "smarthome_state", cfg.Persistence.SnapshotName)
	assert.Equal(t, 5*time.Second, cfg.Simulation.TemperatureStep)
	assert.Equal(t, 10*time.Second, cfg.Simulation.RuleSweep)
	assert.Equal(t, 2*time.Second, cfg.Simulation.LinkageDelay)
	assert.Equal(t, 30*time.Second, cfg.Automation.DefaultCheckInterval)
	assert.Equal(t, 1.0, cfg.Automation.Tolerance)
	assert.Equal(t, 200*time.Millisecond, cfg.Scenes.SettleDelay)
	assert.Equal(t, 100, cfg.Notifications.Capacity)
	assert.Equal(t, 3000.0, cfg.Energy.CostPerKwh)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 8080
persistence:
  backend: file
  file:
    dir: /tmp/homesim
simulation:
  temperature_step: 2s
scenes:
  settle_delay: 50ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Persistence.Backend)
	assert.Equal(t, "/tmp/homesim", cfg.Persistence.File.Dir)
	assert.Equal(t, 2*time.Second, cfg.Simulation.TemperatureStep)
	assert.Equal(t, 50*time.Millisecond, cfg.Scenes.SettleDelay)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOMESIM_PERSISTENCE_BACKEND", "memory")
	t.Setenv("PORT", "9090")

	v := viper.New()
	v.AddConfigPath(t.TempDir())
	v.SetConfigName("config")

	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		v.AddConfigPath(t.TempDir())
		v.SetConfigName("config")
		cfg, err := load(v)
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "s3" }, "not supported"},
		{"redis without addr", func(c *Config) { c.Persistence.Backend = "redis"; c.Persistence.Redis.Addr = "" }, "persistence.redis.addr"},
		{"tiny interval", func(c *Config) { c.Simulation.RuleSweep = time.Millisecond }, "simulation.rule_sweep"},
		{"bad probability", func(c *Config) { c.Simulation.OfflineProbability = 2 }, "offline_probability"},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"capacity", func(c *Config) { c.Notifications.Capacity = 0 }, "notifications.capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

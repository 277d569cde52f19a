package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automn.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[database]
path = "/var/lib/automn/automn.db"
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/automn/automn.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultHealthWindowSec, cfg.Runner.HealthWindowSeconds)
	assert.Equal(t, DefaultStalenessWindowSec, cfg.Runner.StalenessWindowSeconds)
	assert.Equal(t, DefaultMinimumRunnerVersion, cfg.Runner.MinimumRunnerVersion)
	assert.Equal(t, DefaultMaxInFlight, cfg.Dispatch.MaxInFlight)
	assert.Equal(t, DefaultJobTimeoutMs, cfg.Dispatch.DefaultJobTimeoutMs)
	assert.True(t, cfg.Dispatch.InheritCategoryRunner)
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9000
allowed_origins = ["https://ops.example.com"]

[runner]
health_window_seconds = 60
staleness_window_seconds = 600
node_constraint = ">= 18"

[dispatch]
max_in_flight = 4
inherit_category_runner = false
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 60, cfg.Runner.HealthWindowSeconds)
	assert.Equal(t, 600, cfg.Runner.StalenessWindowSeconds)
	assert.Equal(t, ">= 18", cfg.Runner.NodeConstraint)
	assert.Equal(t, 4, cfg.Dispatch.MaxInFlight)
	assert.False(t, cfg.Dispatch.InheritCategoryRunner)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Path: "automn.db"},
			Server:   ServerConfig{Port: 8710},
			Runner: RunnerConfig{
				HealthWindowSeconds:    120,
				StalenessWindowSeconds: 300,
			},
			Dispatch: DispatchConfig{MaxInFlight: 32},
		}
	}

	require.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"health window zero", func(c *Config) { c.Runner.HealthWindowSeconds = 0 }, "health_window_seconds"},
		{"staleness below health", func(c *Config) { c.Runner.StalenessWindowSeconds = 30 }, "staleness_window_seconds"},
		{"max in flight zero", func(c *Config) { c.Dispatch.MaxInFlight = 0 }, "max_in_flight"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRejectedByLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
[dispatch]
max_in_flight = -1
`)
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_in_flight")
}

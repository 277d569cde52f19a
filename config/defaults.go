package config

import "github.com/spf13/viper"

// Default values for the Automn host.
const (
	DefaultServerPort           = 8710
	DefaultHealthWindowSec      = 120
	DefaultStalenessWindowSec   = 300
	DefaultMaxInFlight          = 32
	DefaultJobTimeoutMs         = 300000
	DefaultRegisterBurst        = 10
	DefaultRegisterPerMinute    = 60
	DefaultDatabasePath         = "automn.db"
	DefaultMinimumRunnerVersion = "1.0.0"
)

// SetDefaults installs default values on a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("runner.health_window_seconds", DefaultHealthWindowSec)
	v.SetDefault("runner.staleness_window_seconds", DefaultStalenessWindowSec)
	v.SetDefault("runner.minimum_runner_version", DefaultMinimumRunnerVersion)
	v.SetDefault("runner.register_burst", DefaultRegisterBurst)
	v.SetDefault("runner.register_per_minute", DefaultRegisterPerMinute)
	v.SetDefault("runner.node_constraint", "")
	v.SetDefault("dispatch.max_in_flight", DefaultMaxInFlight)
	v.SetDefault("dispatch.inherit_category_runner", true)
	v.SetDefault("dispatch.default_job_timeout_ms", DefaultJobTimeoutMs)
}

// Package config holds the Automn host configuration.
package config

// Config represents the core Automn host configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the Automn host HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RunnerConfig configures the runner registry and health model
type RunnerConfig struct {
	// HealthWindowSeconds bounds how stale a heartbeat may be before a
	// host is excluded from dispatch selection (default: 120).
	HealthWindowSeconds int `mapstructure:"health_window_seconds"`

	// StalenessWindowSeconds is the longer window used only for "does any
	// healthy host exist at all" queries (default: 300).
	StalenessWindowSeconds int `mapstructure:"staleness_window_seconds"`

	// MinimumRunnerVersion is the lowest runner version this host will
	// flag as compatible. Advisory only; never excludes from dispatch.
	MinimumRunnerVersion string `mapstructure:"minimum_runner_version"`

	// RegisterBurst and RegisterPerMinute bound register/heartbeat calls
	// per host id.
	RegisterBurst     int `mapstructure:"register_burst"`
	RegisterPerMinute int `mapstructure:"register_per_minute"`

	// NodeConstraint is an advisory semver constraint checked against the
	// node runtime version a runner declares at heartbeat (e.g. ">= 18").
	NodeConstraint string `mapstructure:"node_constraint"`
}

// DispatchConfig configures job admission
type DispatchConfig struct {
	// MaxInFlight is the process-wide cap on concurrently dispatched jobs.
	MaxInFlight int `mapstructure:"max_in_flight"`

	// InheritCategoryRunner enables falling back to the owning category's
	// default runner when a script names none.
	InheritCategoryRunner bool `mapstructure:"inherit_category_runner"`

	// DefaultJobTimeoutMs applies when a runner host declares no per-job
	// timeout.
	DefaultJobTimeoutMs int `mapstructure:"default_job_timeout_ms"`
}

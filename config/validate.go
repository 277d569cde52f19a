package config

import "github.com/AutomNexus/Automn-sub001/errors"

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func Validate(c *Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port out of range: %d", c.Server.Port)
	}
	if c.Runner.HealthWindowSeconds <= 0 {
		return errors.Newf("runner.health_window_seconds must be positive: %d", c.Runner.HealthWindowSeconds)
	}
	if c.Runner.StalenessWindowSeconds < c.Runner.HealthWindowSeconds {
		return errors.Newf("runner.staleness_window_seconds (%d) must be >= runner.health_window_seconds (%d)",
			c.Runner.StalenessWindowSeconds, c.Runner.HealthWindowSeconds)
	}
	if c.Dispatch.MaxInFlight <= 0 {
		return errors.Newf("dispatch.max_in_flight must be positive: %d", c.Dispatch.MaxInFlight)
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	return nil
}

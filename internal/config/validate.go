package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for structural problems. All
// problems are reported at once as a joined error.
func (c *Config) Validate() error {
	var errs []error

	if !logLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Gateway.Listen == "" {
		errs = append(errs, errors.New("gateway.listen: must not be empty"))
	}
	if _, err := time.ParseDuration(c.Gateway.SessionTTL); err != nil {
		errs = append(errs, fmt.Errorf("gateway.session_ttl: invalid duration %q: %w", c.Gateway.SessionTTL, err))
	}
	if c.Gateway.ReaperSchedule != "" {
		if _, err := cron.ParseStandard(c.Gateway.ReaperSchedule); err != nil {
			errs = append(errs, fmt.Errorf("gateway.reaper_schedule: %w", err))
		}
	}
	if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("provider.timeout: invalid duration %q: %w", c.Provider.Timeout, err))
	}
	if _, err := time.ParseDuration(c.Worker.StopGrace); err != nil {
		errs = append(errs, fmt.Errorf("worker.stop_grace: invalid duration %q: %w", c.Worker.StopGrace, err))
	}
	if _, err := time.ParseDuration(c.Archive.Retention); err != nil {
		errs = append(errs, fmt.Errorf("archive.retention: invalid duration %q: %w", c.Archive.Retention, err))
	}

	return errors.Join(errs...)
}

// Package config handles YAML configuration loading, environment
// variable expansion, and structural validation for schemer.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Provider ProviderConfig `yaml:"provider"`
	Worker   WorkerConfig   `yaml:"worker"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Memory   MemoryConfig   `yaml:"memory"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// GatewayConfig controls the HTTP gateway.
type GatewayConfig struct {
	// Listen is the address the gateway binds, e.g. ":8080".
	Listen string `yaml:"listen"`

	// SessionTTL is how long an idle session lives before the reaper
	// closes it, as a Go duration string.
	SessionTTL string `yaml:"session_ttl"`

	// ReaperSchedule is the cron expression driving the idle-session
	// reaper. Empty disables the reaper.
	ReaperSchedule string `yaml:"reaper_schedule"`

	// AuthToken, when set, protects the admin endpoints with a bearer
	// token. Normally supplied as ${SCHEMER_AUTH_TOKEN:-}.
	AuthToken string `yaml:"auth_token"`
}

// ProviderConfig controls the completion backend.
type ProviderConfig struct {
	// APIKey for the Gemini API, normally supplied as
	// ${GEMINI_API_KEY:-} so a missing key degrades instead of failing
	// the load.
	APIKey string `yaml:"api_key"`

	// Model is the Gemini model name.
	Model string `yaml:"model"`

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one completion request, as a Go duration string.
	// "0s" means no client-side timeout.
	Timeout string `yaml:"timeout"`
}

// WorkerConfig controls the tool worker subprocess.
type WorkerConfig struct {
	// Command is the argv of the worker process.
	Command []string `yaml:"command"`

	// StopGrace is how long Stop waits before killing the process, as a
	// Go duration string.
	StopGrace string `yaml:"stop_grace"`
}

// ArchiveConfig controls transcript persistence.
type ArchiveConfig struct {
	// Path is the SQLite database file. Empty disables archiving.
	Path string `yaml:"path"`

	// Retention is how long archived transcripts are kept before the
	// reaper deletes them, as a Go duration string. "0s" keeps them
	// forever.
	Retention string `yaml:"retention"`
}

// MemoryConfig tunes session memory behavior.
type MemoryConfig struct {
	// ContextBudget is the soft character cap for decision context.
	ContextBudget int `yaml:"context_budget"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = ":8080"
	}
	if c.Gateway.SessionTTL == "" {
		c.Gateway.SessionTTL = "30m"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gemini-2.0-flash"
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = "0s"
	}
	if c.Worker.StopGrace == "" {
		c.Worker.StopGrace = "3s"
	}
	if c.Archive.Retention == "" {
		c.Archive.Retention = "0s"
	}
	if c.Memory.ContextBudget <= 0 {
		c.Memory.ContextBudget = 4000
	}
}

// ParsedSessionTTL returns the session TTL as a time.Duration.
// Assumes the value has been checked by Validate.
func (c *GatewayConfig) ParsedSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ParsedTimeout returns the provider timeout as a time.Duration.
func (c *ProviderConfig) ParsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ParsedRetention returns the archive retention as a time.Duration.
// Zero means keep forever.
func (c *ArchiveConfig) ParsedRetention() time.Duration {
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		return 0
	}
	return d
}

// ParsedStopGrace returns the worker stop grace as a time.Duration.
func (c *WorkerConfig) ParsedStopGrace() time.Duration {
	d, err := time.ParseDuration(c.StopGrace)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

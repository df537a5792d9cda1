package gemini

import "time"

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// Config holds the Gemini provider settings.
type Config struct {
	// APIKey authenticates against the generateContent endpoint. Empty
	// means the provider is not usable; New reports this to the caller so
	// the decision engine can run in its degraded no-backend mode.
	APIKey string

	// Model is the model name in the request path.
	Model string

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string

	// Timeout bounds one whole request. Zero means no client-side
	// timeout; callers then rely on context cancellation alone.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
}

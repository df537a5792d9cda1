package gemini

import "errors"

var (
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("gemini: api key not configured")

	// ErrUnauthorized indicates the API key was rejected.
	ErrUnauthorized = errors.New("gemini: unauthorized")

	// ErrRateLimited indicates the API returned 429.
	ErrRateLimited = errors.New("gemini: rate limited")

	// ErrUnavailable indicates a 5xx from the API.
	ErrUnavailable = errors.New("gemini: service unavailable")

	// ErrEmptyResponse indicates a 2xx response with no candidates.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

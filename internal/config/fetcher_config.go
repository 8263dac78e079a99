package config

import "time"

// FetcherConfig defines configuration for fetching spec documents.
type FetcherConfig struct {
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds,omitempty" yaml:"http_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	MaxContentSize     int    `json:"max_content_size,omitempty" yaml:"max_content_size,omitempty" validate:"omitempty,min=1"` // Max content size in bytes
	UserAgent          string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Timeout returns the HTTP timeout as a duration.
func (c FetcherConfig) Timeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// NewDefaultFetcherConfig creates default fetcher configuration
func NewDefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		HTTPTimeoutSeconds: 30,
		MaxContentSize:     10 * 1024 * 1024, // 10MB
		UserAgent:          "specwatch/1.0",
		InsecureSkipVerify: false,
	}
}

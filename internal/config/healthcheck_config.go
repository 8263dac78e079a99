package config

import "time"

// HealthCheckConfig defines configuration for endpoint health probing.
type HealthCheckConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	ProbeTimeoutSeconds int  `json:"probe_timeout_seconds,omitempty" yaml:"probe_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	MaxEndpoints        int  `json:"max_endpoints,omitempty" yaml:"max_endpoints,omitempty" validate:"omitempty,min=1"`
	MaxConcurrentProbes int  `json:"max_concurrent_probes,omitempty" yaml:"max_concurrent_probes,omitempty" validate:"omitempty,min=1"`
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (c HealthCheckConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// NewDefaultHealthCheckConfig creates default health check configuration
func NewDefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Enabled:             true,
		ProbeTimeoutSeconds: 10,
		MaxEndpoints:        20, // cap probes per spec per cycle
		MaxConcurrentProbes: 5,
	}
}

package config

import "time"

// ResourceConfig defines configuration for the resource limiter that gates
// polling cycles under memory pressure.
type ResourceConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	MaxMemoryMB          int64   `json:"max_memory_mb,omitempty" yaml:"max_memory_mb,omitempty" validate:"omitempty,min=64"`
	MemoryThreshold      float64 `json:"memory_threshold,omitempty" yaml:"memory_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	CheckIntervalSeconds int     `json:"check_interval_seconds,omitempty" yaml:"check_interval_seconds,omitempty" validate:"omitempty,min=1"`
}

// CheckInterval returns the resource sampling cadence.
func (c ResourceConfig) CheckInterval() time.Duration {
	if c.CheckIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// NewDefaultResourceConfig creates default resource limiter configuration
func NewDefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		Enabled:              true,
		MaxMemoryMB:          1024,
		MemoryThreshold:      0.85,
		CheckIntervalSeconds: 30,
	}
}

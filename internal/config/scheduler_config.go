package config

import "time"

// SchedulerConfig defines configuration for the polling scheduler.
type SchedulerConfig struct {
	TickIntervalSeconds     int `json:"tick_interval_seconds,omitempty" yaml:"tick_interval_seconds,omitempty" validate:"omitempty,min=1"`
	MaxConcurrentCycles     int `json:"max_concurrent_cycles,omitempty" yaml:"max_concurrent_cycles,omitempty" validate:"omitempty,min=1"`
	ConsecutiveFailureLimit int `json:"consecutive_failure_limit,omitempty" yaml:"consecutive_failure_limit,omitempty" validate:"omitempty,min=1"`
}

// TickInterval returns the scheduler cadence as a duration.
func (c SchedulerConfig) TickInterval() time.Duration {
	if c.TickIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// FailureLimit returns the auto-pause threshold.
func (c SchedulerConfig) FailureLimit() int {
	if c.ConsecutiveFailureLimit <= 0 {
		return DefaultConsecutiveFailureLimit
	}
	return c.ConsecutiveFailureLimit
}

// NewDefaultSchedulerConfig creates default scheduler configuration
func NewDefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickIntervalSeconds:     60,
		MaxConcurrentCycles:     5,
		ConsecutiveFailureLimit: DefaultConsecutiveFailureLimit,
	}
}

package config

import "time"

// AlertingConfig defines configuration for alert dispatch and delivery.
type AlertingConfig struct {
	WorkerCount              int    `json:"worker_count,omitempty" yaml:"worker_count,omitempty" validate:"omitempty,min=1"`
	MaxDeliveryAttempts      int    `json:"max_delivery_attempts,omitempty" yaml:"max_delivery_attempts,omitempty" validate:"omitempty,min=1"`
	RetryBaseDelaySeconds    int    `json:"retry_base_delay_seconds,omitempty" yaml:"retry_base_delay_seconds,omitempty" validate:"omitempty,min=1"`
	VisibilityTimeoutSeconds int    `json:"visibility_timeout_seconds,omitempty" yaml:"visibility_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	DeliveryTimeoutSeconds   int    `json:"delivery_timeout_seconds,omitempty" yaml:"delivery_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	ShutdownGraceSeconds     int    `json:"shutdown_grace_seconds,omitempty" yaml:"shutdown_grace_seconds,omitempty" validate:"omitempty,min=1"`
	SendGridAPIKey           string `json:"sendgrid_api_key,omitempty" yaml:"sendgrid_api_key,omitempty"`
	EmailFromAddress         string `json:"email_from_address,omitempty" yaml:"email_from_address,omitempty" validate:"omitempty,email"`
	EmailFromName            string `json:"email_from_name,omitempty" yaml:"email_from_name,omitempty"`
}

// RetryBaseDelay returns the first retry delay; subsequent retries back off
// exponentially from this value.
func (c AlertingConfig) RetryBaseDelay() time.Duration {
	if c.RetryBaseDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RetryBaseDelaySeconds) * time.Second
}

// VisibilityTimeout returns the queue lease duration.
func (c AlertingConfig) VisibilityTimeout() time.Duration {
	if c.VisibilityTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.VisibilityTimeoutSeconds) * time.Second
}

// DeliveryTimeout returns the per-delivery HTTP/SMTP timeout.
func (c AlertingConfig) DeliveryTimeout() time.Duration {
	if c.DeliveryTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long shutdown waits for in-flight deliveries.
func (c AlertingConfig) ShutdownGrace() time.Duration {
	if c.ShutdownGraceSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Attempts returns the bounded delivery attempt count.
func (c AlertingConfig) Attempts() int {
	if c.MaxDeliveryAttempts <= 0 {
		return 4
	}
	return c.MaxDeliveryAttempts
}

// NewDefaultAlertingConfig creates default alerting configuration
func NewDefaultAlertingConfig() AlertingConfig {
	return AlertingConfig{
		WorkerCount:              3,
		MaxDeliveryAttempts:      4,
		RetryBaseDelaySeconds:    5,
		VisibilityTimeoutSeconds: 60,
		DeliveryTimeoutSeconds:   10,
		ShutdownGraceSeconds:     15,
		EmailFromName:            "SpecWatch Alerts",
	}
}

package models

import "time"

// HealthState classifies one probe result. 4xx responses are recorded but
// never alert: an endpoint that answers with a client error is reachable.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateNeutral   HealthState = "neutral"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// ClassifyStatusCode maps an HTTP status code to a health state. A zero code
// means the request never completed (transport failure).
func ClassifyStatusCode(code int) HealthState {
	switch {
	case code >= 200 && code < 400:
		return HealthStateHealthy
	case code >= 400 && code < 500:
		return HealthStateNeutral
	default:
		return HealthStateUnhealthy
	}
}

// EndpointHealthSample is one probe result, retained as a time series per
// source and endpoint.
type EndpointHealthSample struct {
	SourceID     string
	Endpoint     string // "METHOD /path"
	Method       string
	Path         string
	StatusCode   int
	ResponseTime time.Duration
	State        HealthState
	Error        string
	CheckedAt    time.Time
}

// Alertable reports whether the sample participates in transition detection.
// Neutral samples keep the last alertable state unchanged.
func (s EndpointHealthSample) Alertable() bool {
	return s.State != HealthStateNeutral
}

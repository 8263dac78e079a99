package models

import "time"

// EventKind tags a detected transition.
type EventKind string

const (
	EventNewVersion        EventKind = "new_version"
	EventBreakingChange    EventKind = "breaking_change"
	EventEndpointDown      EventKind = "endpoint_down"
	EventEndpointRecovered EventKind = "endpoint_recovered"
)

// ChangeEvent is an ephemeral value describing a detected transition. It is
// not persisted itself; the alert dispatcher consumes it immediately.
type ChangeEvent struct {
	Kind       EventKind
	TenantID   string
	Source     *MonitoredSource
	Snapshot   *VersionSnapshot
	Endpoint   string // "METHOD /path", set for endpoint health events
	StatusCode int    // last probe status for endpoint health events
	Error      string
	OccurredAt time.Time
}

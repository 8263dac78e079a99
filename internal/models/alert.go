package models

import "time"

// AlertChannel is the delivery channel of an alert rule.
type AlertChannel string

const (
	ChannelEmail   AlertChannel = "email"
	ChannelWebhook AlertChannel = "webhook"
	ChannelChat    AlertChannel = "chat"
)

// AlertRule is a subscriber's configuration for one monitored source. Many
// rules may exist per source.
type AlertRule struct {
	ID                  string
	TenantID            string
	SourceID            string
	Channel             AlertChannel
	Destination         string
	OnNewVersion        bool
	OnBreakingChange    bool
	OnEndpointDown      bool
	OnEndpointRecovered bool
	Enabled             bool
	CreatedAt           time.Time
}

// Matches reports whether the rule reacts to the given event kind.
func (r *AlertRule) Matches(kind EventKind) bool {
	if !r.Enabled {
		return false
	}
	switch kind {
	case EventNewVersion:
		return r.OnNewVersion
	case EventBreakingChange:
		return r.OnBreakingChange
	case EventEndpointDown:
		return r.OnEndpointDown
	case EventEndpointRecovered:
		return r.OnEndpointRecovered
	}
	return false
}

// AlertStatus is the delivery status of an alert record. Transitions are
// append-only: pending -> sent|failed, never reversed.
type AlertStatus string

const (
	AlertStatusPending AlertStatus = "pending"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
)

// AlertRecord is the durable audit entry for one enqueued delivery. Created
// in pending state atomically with its queue task; updated exactly once to a
// terminal state by a delivery worker.
type AlertRecord struct {
	ID        string
	TenantID  string
	RuleID    string
	SourceID  string
	EventKind EventKind
	Status    AlertStatus
	Payload   []byte
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeliveryTask is one leased unit of work from the delivery queue.
type DeliveryTask struct {
	ID       int64
	RecordID string
	RuleID   string
	Attempts int
}

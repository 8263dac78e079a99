package models

import "time"

// SourceStatus is the lifecycle state of a monitored source.
type SourceStatus string

const (
	SourceStatusActive  SourceStatus = "active"
	SourceStatusPaused  SourceStatus = "paused"
	SourceStatusFailed  SourceStatus = "failed"
	SourceStatusDeleted SourceStatus = "deleted"
)

// IntervalClass is the polling frequency class of a monitored source.
type IntervalClass string

const (
	IntervalHourly IntervalClass = "hourly"
	IntervalDaily  IntervalClass = "daily"
	IntervalWeekly IntervalClass = "weekly"
)

// Duration returns the polling interval for the class. Unknown classes fall
// back to daily.
func (ic IntervalClass) Duration() time.Duration {
	switch ic {
	case IntervalHourly:
		return time.Hour
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// MonitoredSource is one externally polled specification. It is created on
// registration and mutated only by the polling scheduler after each tick.
type MonitoredSource struct {
	ID                  string
	TenantID            string
	URL                 string
	Interval            IntervalClass
	Enabled             bool
	Fingerprint         string
	ETag                string
	LastModified        string
	LastPollAt          time.Time
	LastSuccessAt       time.Time
	ConsecutiveFailures int
	LastError           string
	Status              SourceStatus
	CreatedAt           time.Time
}

// Due reports whether the source should be polled at time now.
func (s *MonitoredSource) Due(now time.Time) bool {
	if s.Status != SourceStatusActive || !s.Enabled {
		return false
	}
	if s.LastPollAt.IsZero() {
		return true
	}
	return !s.LastPollAt.Add(s.Interval.Duration()).After(now)
}

// PollStatus summarizes one polling cycle for a single source.
type PollStatus string

const (
	PollStatusSuccess  PollStatus = "success"
	PollStatusNoChange PollStatus = "no_change"
	PollStatusError    PollStatus = "error"
	PollStatusSkipped  PollStatus = "skipped"
)

// PollOutcome is the result of a single polling cycle.
type PollOutcome struct {
	SourceID       string
	Status         PollStatus
	VersionCreated int64
	Breaking       bool
	Error          string
}

// PollSummary aggregates the outcomes of one scheduler tick.
type PollSummary struct {
	Total           int
	Success         int
	NoChange        int
	Errors          int
	Skipped         int
	VersionsCreated []int64
}

// Add folds one outcome into the summary.
func (ps *PollSummary) Add(outcome PollOutcome) {
	ps.Total++
	switch outcome.Status {
	case PollStatusSuccess:
		ps.Success++
		if outcome.VersionCreated > 0 {
			ps.VersionsCreated = append(ps.VersionsCreated, outcome.VersionCreated)
		}
	case PollStatusNoChange:
		ps.NoChange++
	case PollStatusError:
		ps.Errors++
	case PollStatusSkipped:
		ps.Skipped++
	}
}

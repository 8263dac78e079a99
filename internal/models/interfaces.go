package models

import (
	"context"
	"time"
)

// SourceStore persists monitored sources.
type SourceStore interface {
	Create(ctx context.Context, src *MonitoredSource) error
	GetByID(ctx context.Context, tenantID, sourceID string) (*MonitoredSource, error)
	ListActive(ctx context.Context) ([]*MonitoredSource, error)
	UpdateAfterPoll(ctx context.Context, src *MonitoredSource) error
	SetStatus(ctx context.Context, tenantID, sourceID string, status SourceStatus) error
}

// VersionStore is the durable, append-only record of versions per source.
// Lookups resolve by direct identity, never by counting rows: version numbers
// may have gaps from manual deletions or backfills.
type VersionStore interface {
	Append(ctx context.Context, snapshot *VersionSnapshot) (int64, error)
	GetByVersion(ctx context.Context, tenantID, sourceID string, version int64) (*VersionSnapshot, error)
	GetLatest(ctx context.Context, tenantID, sourceID string) (*VersionSnapshot, error)
	ListSummaries(ctx context.Context, tenantID, sourceID string) ([]VersionSummary, error)
	// CompareArbitrary fetches two arbitrary snapshots for ad hoc comparison.
	// If either lacks its full structural document the call fails with
	// errorwrapper.ErrIncompleteArtifact.
	CompareArbitrary(ctx context.Context, tenantID, sourceID string, v1, v2 int64) (*VersionSnapshot, *VersionSnapshot, error)
}

// AlertRuleStore persists alert rules.
type AlertRuleStore interface {
	Upsert(ctx context.Context, rule *AlertRule) error
	ListMatching(ctx context.Context, tenantID, sourceID string, kind EventKind) ([]*AlertRule, error)
	GetByID(ctx context.Context, tenantID, ruleID string) (*AlertRule, error)
}

// AlertRecordStore persists the delivery audit trail.
type AlertRecordStore interface {
	GetByID(ctx context.Context, recordID string) (*AlertRecord, error)
	ListBySource(ctx context.Context, tenantID, sourceID string) ([]*AlertRecord, error)
	MarkSent(ctx context.Context, recordID string) error
	MarkFailed(ctx context.Context, recordID, errMsg string) error
}

// AlertEnqueuer creates a pending alert record together with its delivery
// task in one transaction, so a pending record always has exactly one queued
// task and a crash can never produce one without the other.
type AlertEnqueuer interface {
	EnqueuePending(ctx context.Context, record *AlertRecord) error
}

// DeliveryQueue is the durable work queue between the dispatcher and the
// delivery workers. The contract is at-least-once: a leased task that is
// neither acked nor failed becomes visible again after its lease expires.
// Implementations must be safe for multiple concurrent consumers.
type DeliveryQueue interface {
	// Lease claims the next available task for the given visibility window.
	// Returns ErrRecordNotFound when the queue is empty.
	Lease(ctx context.Context, visibility time.Duration) (*DeliveryTask, error)
	// Ack removes a completed task.
	Ack(ctx context.Context, taskID int64) error
	// Retry returns the task to the queue, visible again after delay.
	Retry(ctx context.Context, taskID int64, delay time.Duration) error
	// Pending reports the number of unfinished tasks.
	Pending(ctx context.Context) (int, error)
}

// HealthSampleStore retains the endpoint health time series.
type HealthSampleStore interface {
	Append(ctx context.Context, samples []EndpointHealthSample) error
	// LatestByEndpoint returns the most recent sample per endpoint for the source.
	LatestByEndpoint(ctx context.Context, sourceID string) (map[string]EndpointHealthSample, error)
}

// ArtifactStore is the external blob storage collaborator. Artifacts are
// keyed by source id and version number and are strictly append-only.
type ArtifactStore interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Renderer is the external document rendering collaborator. Both operations
// are best effort: failures are logged and never roll back a version append.
type Renderer interface {
	Summarize(ctx context.Context, previous, current *NormalizedSpec, delta *SpecDelta) (string, error)
	GenerateDocs(ctx context.Context, snapshot *VersionSnapshot) error
}

package models

import "time"

// ChangeKind tags one structural change between two normalized snapshots.
type ChangeKind string

const (
	ChangeEndpointAdded       ChangeKind = "endpoint_added"
	ChangeEndpointRemoved     ChangeKind = "endpoint_removed"
	ChangeParamAdded          ChangeKind = "param_added"
	ChangeParamRemoved        ChangeKind = "param_removed"
	ChangeParamBecameRequired ChangeKind = "param_became_required"
	ChangeParamBecameOptional ChangeKind = "param_became_optional"
	ChangeFieldAdded          ChangeKind = "field_added"
	ChangeFieldRemoved        ChangeKind = "field_removed"
	ChangeFieldTypeChanged    ChangeKind = "field_type_changed"
	ChangeFieldBecameRequired ChangeKind = "field_became_required"
	ChangeFieldBecameOptional ChangeKind = "field_became_optional"
	ChangeEnumValueAdded      ChangeKind = "enum_value_added"
	ChangeEnumValueRemoved    ChangeKind = "enum_value_removed"
	ChangeComponentAdded      ChangeKind = "component_added"
	ChangeComponentRemoved    ChangeKind = "component_removed"
)

// SpecChange is one structural addition, removal or modification, keyed by
// endpoint and field path.
type SpecChange struct {
	Kind     ChangeKind `json:"kind"`
	Endpoint string     `json:"endpoint,omitempty"`
	Path     string     `json:"path,omitempty"`
	From     string     `json:"from,omitempty"`
	To       string     `json:"to,omitempty"`
	Breaking bool       `json:"breaking"`
}

// SpecDelta is the structural difference between two normalized snapshots.
// NeedsReview is set when the diff engine could not confidently classify a
// change and defaulted to non-breaking.
type SpecDelta struct {
	Changes     []SpecChange `json:"changes"`
	Breaking    bool         `json:"breaking"`
	NeedsReview bool         `json:"needs_review,omitempty"`
	UnifiedDiff string       `json:"unified_diff,omitempty"`
}

// BreakingChanges returns only the breaking subset of the delta.
func (d *SpecDelta) BreakingChanges() []SpecChange {
	var out []SpecChange
	for _, c := range d.Changes {
		if c.Breaking {
			out = append(out, c)
		}
	}
	return out
}

// VersionSnapshot is one immutable recorded version of a source's spec.
// Snapshots are append-only: never updated or deleted by the pipeline.
// Diff is nil only for a source's first recorded version.
type VersionSnapshot struct {
	SourceID    string
	TenantID    string
	Version     int64
	Spec        *NormalizedSpec
	Fingerprint string
	Diff        *SpecDelta
	Summary     string
	CreatedAt   time.Time
}

// VersionSummary is the history-listing view of a snapshot, without the
// structural document.
type VersionSummary struct {
	Version     int64
	Breaking    bool
	ChangeCount int
	Summary     string
	CreatedAt   time.Time
}

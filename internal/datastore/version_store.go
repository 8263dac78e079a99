package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// SQLiteVersionStore is the append-only version history. Version numbers are
// assigned inside the insert transaction as max(version)+1 per source, and
// every lookup resolves by the version column itself, never by row position:
// the sequence may have gaps and the store stays correct across them.
type SQLiteVersionStore struct {
	db     *DB
	logger zerolog.Logger
}

// NewSQLiteVersionStore creates a version store backed by db.
func NewSQLiteVersionStore(db *DB, logger zerolog.Logger) *SQLiteVersionStore {
	return &SQLiteVersionStore{
		db:     db,
		logger: logger.With().Str("component", "VersionStore").Logger(),
	}
}

// Append persists snapshot under the next version number for its source and
// returns the assigned number. The snapshot's Version field is ignored on
// input and populated on success.
func (s *SQLiteVersionStore) Append(ctx context.Context, snapshot *models.VersionSnapshot) (int64, error) {
	if snapshot.Spec == nil {
		return 0, errorwrapper.WrapError(errorwrapper.ErrInvalidInput, "snapshot has no normalized spec")
	}
	normalized, err := snapshot.Spec.CanonicalJSON()
	if err != nil {
		return 0, errorwrapper.WrapError(err, "failed to serialize normalized spec")
	}

	var (
		diffJSON    any
		breaking    bool
		needsReview bool
		changeCount int
	)
	if snapshot.Diff != nil {
		encoded, err := json.Marshal(snapshot.Diff)
		if err != nil {
			return 0, errorwrapper.WrapError(err, "failed to serialize diff")
		}
		diffJSON = string(encoded)
		breaking = snapshot.Diff.Breaking
		needsReview = snapshot.Diff.NeedsReview
		changeCount = len(snapshot.Diff.Changes)
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errorwrapper.WrapError(err, "failed to begin version append transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE source_id = ?`,
		snapshot.SourceID).Scan(&next)
	if err != nil {
		return 0, errorwrapper.WrapError(err, "failed to compute next version number")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO versions
			(source_id, tenant_id, version, normalized, fingerprint, diff, breaking, needs_review, change_count, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.SourceID, snapshot.TenantID, next, string(normalized), snapshot.Fingerprint,
		diffJSON, breaking, needsReview, changeCount, snapshot.Summary, snapshot.CreatedAt)
	if err != nil {
		return 0, errorwrapper.WrapError(err, "failed to insert version snapshot")
	}
	if err := tx.Commit(); err != nil {
		return 0, errorwrapper.WrapError(err, "failed to commit version append")
	}

	snapshot.Version = next
	s.logger.Info().
		Str("source_id", snapshot.SourceID).
		Int64("version", next).
		Bool("breaking", breaking).
		Msg("Version snapshot appended")
	return next, nil
}

// GetByVersion resolves one snapshot by its exact version number.
func (s *SQLiteVersionStore) GetByVersion(ctx context.Context, tenantID, sourceID string, version int64) (*models.VersionSnapshot, error) {
	row := s.db.db.QueryRowContext(ctx,
		selectVersionColumns+` WHERE source_id = ? AND tenant_id = ? AND version = ?`,
		sourceID, tenantID, version)
	return scanSnapshot(row)
}

// GetLatest resolves the highest-numbered snapshot of a source.
func (s *SQLiteVersionStore) GetLatest(ctx context.Context, tenantID, sourceID string) (*models.VersionSnapshot, error) {
	row := s.db.db.QueryRowContext(ctx,
		selectVersionColumns+` WHERE source_id = ? AND tenant_id = ? ORDER BY version DESC LIMIT 1`,
		sourceID, tenantID)
	return scanSnapshot(row)
}

// ListSummaries returns the version history newest first, without the spec
// documents.
func (s *SQLiteVersionStore) ListSummaries(ctx context.Context, tenantID, sourceID string) ([]models.VersionSummary, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT version, breaking, change_count, summary, created_at
			FROM versions WHERE source_id = ? AND tenant_id = ? ORDER BY version DESC`,
		sourceID, tenantID)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to list version summaries")
	}
	defer rows.Close()

	var summaries []models.VersionSummary
	for rows.Next() {
		var vs models.VersionSummary
		if err := rows.Scan(&vs.Version, &vs.Breaking, &vs.ChangeCount, &vs.Summary, &vs.CreatedAt); err != nil {
			return nil, errorwrapper.WrapError(err, "failed to scan version summary")
		}
		summaries = append(summaries, vs)
	}
	return summaries, rows.Err()
}

// CompareArbitrary loads two snapshots for ad hoc comparison. Both must carry
// their full structural document; a snapshot whose stored form cannot be
// parsed fails with ErrIncompleteArtifact rather than comparing garbage.
func (s *SQLiteVersionStore) CompareArbitrary(ctx context.Context, tenantID, sourceID string, v1, v2 int64) (*models.VersionSnapshot, *models.VersionSnapshot, error) {
	first, err := s.GetByVersion(ctx, tenantID, sourceID, v1)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.GetByVersion(ctx, tenantID, sourceID, v2)
	if err != nil {
		return nil, nil, err
	}
	for _, snap := range []*models.VersionSnapshot{first, second} {
		if snap.Spec == nil || snap.Spec.SpecVersion == "" {
			return nil, nil, errorwrapper.WrapError(errorwrapper.ErrIncompleteArtifact, "version snapshot missing structural document")
		}
	}
	return first, second, nil
}

const selectVersionColumns = `SELECT source_id, tenant_id, version, normalized, fingerprint, diff, summary, created_at FROM versions`

func scanSnapshot(row rowScanner) (*models.VersionSnapshot, error) {
	var (
		snapshot   models.VersionSnapshot
		normalized string
		diffJSON   sql.NullString
	)
	err := row.Scan(&snapshot.SourceID, &snapshot.TenantID, &snapshot.Version,
		&normalized, &snapshot.Fingerprint, &diffJSON, &snapshot.Summary, &snapshot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrVersionNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to scan version snapshot")
	}

	spec, err := models.ParseNormalizedSpec([]byte(normalized))
	if err != nil {
		return nil, errorwrapper.WrapError(errorwrapper.ErrIncompleteArtifact, "stored normalized spec is unreadable")
	}
	snapshot.Spec = spec

	if diffJSON.Valid && diffJSON.String != "" {
		var delta models.SpecDelta
		if err := json.Unmarshal([]byte(diffJSON.String), &delta); err != nil {
			return nil, errorwrapper.WrapError(errorwrapper.ErrIncompleteArtifact, "stored diff is unreadable")
		}
		snapshot.Diff = &delta
	}
	return &snapshot, nil
}

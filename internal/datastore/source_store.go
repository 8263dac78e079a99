package datastore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// SQLiteSourceStore persists monitored sources in the shared SQLite database.
type SQLiteSourceStore struct {
	db     *DB
	logger zerolog.Logger
}

// NewSQLiteSourceStore creates a source store backed by db.
func NewSQLiteSourceStore(db *DB, logger zerolog.Logger) *SQLiteSourceStore {
	return &SQLiteSourceStore{
		db:     db,
		logger: logger.With().Str("component", "SourceStore").Logger(),
	}
}

// Create inserts a new monitored source.
func (s *SQLiteSourceStore) Create(ctx context.Context, src *models.MonitoredSource) error {
	query := `INSERT INTO sources
		(id, tenant_id, url, interval_class, enabled, fingerprint, etag, last_modified, consecutive_failures, last_error, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.db.ExecContext(ctx, query,
		src.ID, src.TenantID, src.URL, string(src.Interval), src.Enabled,
		src.Fingerprint, src.ETag, src.LastModified, src.ConsecutiveFailures, src.LastError, string(src.Status), src.CreatedAt)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to insert monitored source")
	}
	s.logger.Info().Str("source_id", src.ID).Str("tenant_id", src.TenantID).Str("url", src.URL).Msg("Monitored source created")
	return nil
}

// GetByID resolves a source by tenant and id.
func (s *SQLiteSourceStore) GetByID(ctx context.Context, tenantID, sourceID string) (*models.MonitoredSource, error) {
	query := selectSourceColumns + ` WHERE id = ? AND tenant_id = ? AND status != ?`
	row := s.db.db.QueryRowContext(ctx, query, sourceID, tenantID, string(models.SourceStatusDeleted))
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSourceNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to query monitored source")
	}
	return src, nil
}

// ListActive returns every active source across tenants, for the scheduler.
func (s *SQLiteSourceStore) ListActive(ctx context.Context) ([]*models.MonitoredSource, error) {
	query := selectSourceColumns + ` WHERE status = ? AND enabled = 1 ORDER BY created_at`
	rows, err := s.db.db.QueryContext(ctx, query, string(models.SourceStatusActive))
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to list active sources")
	}
	defer rows.Close()

	var sources []*models.MonitoredSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, errorwrapper.WrapError(err, "failed to scan monitored source")
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateAfterPoll persists the mutable post-cycle fields of a source.
func (s *SQLiteSourceStore) UpdateAfterPoll(ctx context.Context, src *models.MonitoredSource) error {
	query := `UPDATE sources SET
		fingerprint = ?, etag = ?, last_modified = ?, last_poll_at = ?, last_success_at = ?,
		consecutive_failures = ?, last_error = ?, status = ?
		WHERE id = ? AND tenant_id = ?`
	result, err := s.db.db.ExecContext(ctx, query,
		src.Fingerprint, src.ETag, src.LastModified, nullableTime(src.LastPollAt), nullableTime(src.LastSuccessAt),
		src.ConsecutiveFailures, src.LastError, string(src.Status),
		src.ID, src.TenantID)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to update source after poll")
	}
	return requireRowAffected(result, models.ErrSourceNotFound)
}

// SetStatus transitions a source's lifecycle state.
func (s *SQLiteSourceStore) SetStatus(ctx context.Context, tenantID, sourceID string, status models.SourceStatus) error {
	query := `UPDATE sources SET status = ? WHERE id = ? AND tenant_id = ?`
	result, err := s.db.db.ExecContext(ctx, query, string(status), sourceID, tenantID)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to set source status")
	}
	if err := requireRowAffected(result, models.ErrSourceNotFound); err != nil {
		return err
	}
	s.logger.Info().Str("source_id", sourceID).Str("status", string(status)).Msg("Source status updated")
	return nil
}

const selectSourceColumns = `SELECT id, tenant_id, url, interval_class, enabled, fingerprint,
	etag, last_modified, last_poll_at, last_success_at, consecutive_failures, last_error, status, created_at
	FROM sources`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.MonitoredSource, error) {
	var (
		src           models.MonitoredSource
		interval      string
		status        string
		lastPollAt    sql.NullTime
		lastSuccessAt sql.NullTime
	)
	err := row.Scan(&src.ID, &src.TenantID, &src.URL, &interval, &src.Enabled, &src.Fingerprint,
		&src.ETag, &src.LastModified, &lastPollAt, &lastSuccessAt, &src.ConsecutiveFailures, &src.LastError, &status, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	src.Interval = models.IntervalClass(interval)
	src.Status = models.SourceStatus(status)
	if lastPollAt.Valid {
		src.LastPollAt = lastPollAt.Time
	}
	if lastSuccessAt.Valid {
		src.LastSuccessAt = lastSuccessAt.Time
	}
	return &src, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireRowAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errorwrapper.WrapError(err, "failed to read affected row count")
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

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

// SQLiteAlertRuleStore persists alert rules.
type SQLiteAlertRuleStore struct {
	db     *DB
	logger zerolog.Logger
}

// NewSQLiteAlertRuleStore creates a rule store backed by db.
func NewSQLiteAlertRuleStore(db *DB, logger zerolog.Logger) *SQLiteAlertRuleStore {
	return &SQLiteAlertRuleStore{
		db:     db,
		logger: logger.With().Str("component", "AlertRuleStore").Logger(),
	}
}

// Upsert inserts or replaces a rule by id.
func (s *SQLiteAlertRuleStore) Upsert(ctx context.Context, rule *models.AlertRule) error {
	query := `INSERT INTO alert_rules
		(id, tenant_id, source_id, channel, destination,
		 on_new_version, on_breaking_change, on_endpoint_down, on_endpoint_recovered, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			destination = excluded.destination,
			on_new_version = excluded.on_new_version,
			on_breaking_change = excluded.on_breaking_change,
			on_endpoint_down = excluded.on_endpoint_down,
			on_endpoint_recovered = excluded.on_endpoint_recovered,
			enabled = excluded.enabled`
	_, err := s.db.db.ExecContext(ctx, query,
		rule.ID, rule.TenantID, rule.SourceID, string(rule.Channel), rule.Destination,
		rule.OnNewVersion, rule.OnBreakingChange, rule.OnEndpointDown, rule.OnEndpointRecovered,
		rule.Enabled, rule.CreatedAt)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to upsert alert rule")
	}
	s.logger.Info().Str("rule_id", rule.ID).Str("source_id", rule.SourceID).Str("channel", string(rule.Channel)).Msg("Alert rule upserted")
	return nil
}

// GetByID resolves one rule.
func (s *SQLiteAlertRuleStore) GetByID(ctx context.Context, tenantID, ruleID string) (*models.AlertRule, error) {
	row := s.db.db.QueryRowContext(ctx,
		selectRuleColumns+` WHERE id = ? AND tenant_id = ?`, ruleID, tenantID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to query alert rule")
	}
	return rule, nil
}

// ListMatching returns the enabled rules of a source that react to kind.
// Kind matching is done in memory so the rule model owns the predicate.
func (s *SQLiteAlertRuleStore) ListMatching(ctx context.Context, tenantID, sourceID string, kind models.EventKind) ([]*models.AlertRule, error) {
	rows, err := s.db.db.QueryContext(ctx,
		selectRuleColumns+` WHERE tenant_id = ? AND source_id = ? AND enabled = 1`,
		tenantID, sourceID)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to list alert rules")
	}
	defer rows.Close()

	var matching []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errorwrapper.WrapError(err, "failed to scan alert rule")
		}
		if rule.Matches(kind) {
			matching = append(matching, rule)
		}
	}
	return matching, rows.Err()
}

const selectRuleColumns = `SELECT id, tenant_id, source_id, channel, destination,
	on_new_version, on_breaking_change, on_endpoint_down, on_endpoint_recovered, enabled, created_at
	FROM alert_rules`

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		rule    models.AlertRule
		channel string
	)
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.SourceID, &channel, &rule.Destination,
		&rule.OnNewVersion, &rule.OnBreakingChange, &rule.OnEndpointDown, &rule.OnEndpointRecovered,
		&rule.Enabled, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	rule.Channel = models.AlertChannel(channel)
	return &rule, nil
}

// SQLiteAlertRecordStore persists the alert delivery audit trail and, through
// EnqueuePending, couples record creation with queue insertion in one
// transaction.
type SQLiteAlertRecordStore struct {
	db     *DB
	logger zerolog.Logger
	clock  func() time.Time
}

// NewSQLiteAlertRecordStore creates a record store backed by db.
func NewSQLiteAlertRecordStore(db *DB, logger zerolog.Logger) *SQLiteAlertRecordStore {
	return &SQLiteAlertRecordStore{
		db:     db,
		logger: logger.With().Str("component", "AlertRecordStore").Logger(),
		clock:  time.Now,
	}
}

// EnqueuePending inserts the pending record and its delivery task atomically.
func (s *SQLiteAlertRecordStore) EnqueuePending(ctx context.Context, record *models.AlertRecord) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to begin alert enqueue transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alert_records
			(id, tenant_id, rule_id, source_id, event_kind, status, payload, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		record.ID, record.TenantID, record.RuleID, record.SourceID, string(record.EventKind),
		string(models.AlertStatusPending), record.Payload, record.CreatedAt, record.CreatedAt)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to insert alert record")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO delivery_queue (record_id, rule_id, attempts, available_at) VALUES (?, ?, 0, ?)`,
		record.ID, record.RuleID, record.CreatedAt)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to insert delivery task")
	}

	if err := tx.Commit(); err != nil {
		return errorwrapper.WrapError(err, "failed to commit alert enqueue")
	}
	record.Status = models.AlertStatusPending
	s.logger.Debug().Str("record_id", record.ID).Str("rule_id", record.RuleID).Str("event_kind", string(record.EventKind)).Msg("Alert record enqueued")
	return nil
}

// GetByID resolves one record.
func (s *SQLiteAlertRecordStore) GetByID(ctx context.Context, recordID string) (*models.AlertRecord, error) {
	row := s.db.db.QueryRowContext(ctx, selectRecordColumns+` WHERE id = ?`, recordID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to query alert record")
	}
	return record, nil
}

// ListBySource returns the delivery history of a source, newest first.
func (s *SQLiteAlertRecordStore) ListBySource(ctx context.Context, tenantID, sourceID string) ([]*models.AlertRecord, error) {
	rows, err := s.db.db.QueryContext(ctx,
		selectRecordColumns+` WHERE tenant_id = ? AND source_id = ? ORDER BY created_at DESC`,
		tenantID, sourceID)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to list alert records")
	}
	defer rows.Close()

	var records []*models.AlertRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, errorwrapper.WrapError(err, "failed to scan alert record")
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkSent transitions a pending record to sent. Records already in a
// terminal state are left untouched so redelivery after a worker crash stays
// idempotent.
func (s *SQLiteAlertRecordStore) MarkSent(ctx context.Context, recordID string) error {
	return s.markTerminal(ctx, recordID, models.AlertStatusSent, "")
}

// MarkFailed transitions a pending record to failed with the final error.
func (s *SQLiteAlertRecordStore) MarkFailed(ctx context.Context, recordID, errMsg string) error {
	return s.markTerminal(ctx, recordID, models.AlertStatusFailed, errMsg)
}

func (s *SQLiteAlertRecordStore) markTerminal(ctx context.Context, recordID string, status models.AlertStatus, errMsg string) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE alert_records SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), errMsg, s.clock().UTC(), recordID, string(models.AlertStatusPending))
	if err != nil {
		return errorwrapper.WrapError(err, "failed to finalize alert record")
	}
	return nil
}

const selectRecordColumns = `SELECT id, tenant_id, rule_id, source_id, event_kind, status, payload, error, created_at, updated_at
	FROM alert_records`

func scanRecord(row rowScanner) (*models.AlertRecord, error) {
	var (
		record    models.AlertRecord
		eventKind string
		status    string
	)
	err := row.Scan(&record.ID, &record.TenantID, &record.RuleID, &record.SourceID,
		&eventKind, &status, &record.Payload, &record.Error, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	record.EventKind = models.EventKind(eventKind)
	record.Status = models.AlertStatus(status)
	return &record, nil
}

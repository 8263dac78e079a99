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

// SQLiteDeliveryQueue is a lease-based durable queue over the delivery_queue
// table. A leased task stays invisible until its lease expires; tasks that
// are never acked return to the queue, giving at-least-once delivery.
type SQLiteDeliveryQueue struct {
	db     *DB
	logger zerolog.Logger
	clock  func() time.Time
}

// NewSQLiteDeliveryQueue creates a delivery queue backed by db.
func NewSQLiteDeliveryQueue(db *DB, logger zerolog.Logger) *SQLiteDeliveryQueue {
	return &SQLiteDeliveryQueue{
		db:     db,
		logger: logger.With().Str("component", "DeliveryQueue").Logger(),
		clock:  time.Now,
	}
}

// Lease claims the oldest available task for the visibility window. Returns
// models.ErrRecordNotFound when nothing is available.
func (q *SQLiteDeliveryQueue) Lease(ctx context.Context, visibility time.Duration) (*models.DeliveryTask, error) {
	now := q.clock().UTC()

	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to begin lease transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var task models.DeliveryTask
	err = tx.QueryRowContext(ctx,
		`SELECT id, record_id, rule_id, attempts FROM delivery_queue
			WHERE done = 0 AND available_at <= ? AND (leased_until IS NULL OR leased_until <= ?)
			ORDER BY available_at LIMIT 1`,
		now, now).Scan(&task.ID, &task.RecordID, &task.RuleID, &task.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to select available delivery task")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE delivery_queue SET leased_until = ? WHERE id = ?`,
		now.Add(visibility), task.ID)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to lease delivery task")
	}
	if err := tx.Commit(); err != nil {
		return nil, errorwrapper.WrapError(err, "failed to commit lease")
	}

	q.logger.Debug().Int64("task_id", task.ID).Str("record_id", task.RecordID).Int("attempts", task.Attempts).Msg("Delivery task leased")
	return &task, nil
}

// Ack marks a task finished. Finished tasks are kept, flagged done, so the
// queue table doubles as a delivery log.
func (q *SQLiteDeliveryQueue) Ack(ctx context.Context, taskID int64) error {
	result, err := q.db.db.ExecContext(ctx,
		`UPDATE delivery_queue SET done = 1, leased_until = NULL WHERE id = ? AND done = 0`, taskID)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to ack delivery task")
	}
	return requireRowAffected(result, models.ErrRecordNotFound)
}

// Retry releases the task back to the queue, visible again after delay, with
// its attempt counter bumped.
func (q *SQLiteDeliveryQueue) Retry(ctx context.Context, taskID int64, delay time.Duration) error {
	result, err := q.db.db.ExecContext(ctx,
		`UPDATE delivery_queue SET attempts = attempts + 1, available_at = ?, leased_until = NULL
			WHERE id = ? AND done = 0`,
		q.clock().UTC().Add(delay), taskID)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to retry delivery task")
	}
	return requireRowAffected(result, models.ErrRecordNotFound)
}

// Pending reports the number of unfinished tasks, leased or not.
func (q *SQLiteDeliveryQueue) Pending(ctx context.Context) (int, error) {
	var count int
	err := q.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_queue WHERE done = 0`).Scan(&count)
	if err != nil {
		return 0, errorwrapper.WrapError(err, "failed to count pending delivery tasks")
	}
	return count, nil
}

package datastore

import (
	"database/sql"
	"os"
	"path/filepath"

	"specwatch/internal/errorwrapper"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by every store in this package.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDB opens (creating if needed) the SQLite database at dataSourceName and
// ensures the schema exists.
func NewDB(dataSourceName string, logger zerolog.Logger) (*DB, error) {
	componentLogger := logger.With().Str("component", "Datastore").Logger()
	componentLogger.Info().Str("db_path", dataSourceName).Msg("Initializing database connection")

	dbDir := filepath.Dir(dataSourceName)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, errorwrapper.WrapError(err, "failed to create database directory "+dbDir)
	}

	dbInstance, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "sql.Open failed for "+dataSourceName)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent pollers.
	dbInstance.SetMaxOpenConns(1)

	d := &DB{db: dbInstance, logger: componentLogger}
	if err := d.initSchema(); err != nil {
		_ = d.Close()
		return nil, errorwrapper.WrapError(err, "failed to initialize schema")
	}
	componentLogger.Info().Str("path", dataSourceName).Msg("Database initialized and schema verified")
	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			interval_class TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			fingerprint TEXT NOT NULL DEFAULT '',
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			last_poll_at DATETIME,
			last_success_at DATETIME,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sources_tenant ON sources(tenant_id);`,
		`CREATE TABLE IF NOT EXISTS versions (
			source_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			normalized TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			diff TEXT,
			breaking INTEGER NOT NULL DEFAULT 0,
			needs_review INTEGER NOT NULL DEFAULT 0,
			change_count INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (source_id, version)
		);`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			destination TEXT NOT NULL,
			on_new_version INTEGER NOT NULL DEFAULT 0,
			on_breaking_change INTEGER NOT NULL DEFAULT 0,
			on_endpoint_down INTEGER NOT NULL DEFAULT 0,
			on_endpoint_recovered INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_source ON alert_rules(tenant_id, source_id);`,
		`CREATE TABLE IF NOT EXISTS alert_records (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			event_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BLOB,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_records_source ON alert_records(tenant_id, source_id);`,
		`CREATE TABLE IF NOT EXISTS delivery_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			available_at DATETIME NOT NULL,
			leased_until DATETIME,
			done INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_queue_available ON delivery_queue(done, available_at);`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			d.logger.Error().Err(err).Msg("Failed to initialize schema")
			return err
		}
	}
	return nil
}

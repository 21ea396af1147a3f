package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite audit recorder.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite recorder configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:        "data/audit.db",
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteRecorder implements Recorder using SQLite. Change volume is low
// (one row per posture transition), so a single-writer pool suffices.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS decision_changes (
	id TEXT PRIMARY KEY,
	service TEXT NOT NULL,
	environment TEXT NOT NULL,
	previous_policy_id TEXT,
	matched_policy_id TEXT NOT NULL,
	log_level TEXT NOT NULL,
	trace_sample_rate REAL NOT NULL,
	metric_interval_seconds INTEGER NOT NULL,
	reason TEXT NOT NULL,
	changed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_key_time
	ON decision_changes (service, environment, changed_at DESC);
CREATE INDEX IF NOT EXISTS idx_changes_time
	ON decision_changes (changed_at);
`

// NewSQLiteRecorder opens the audit database and creates the schema.
func NewSQLiteRecorder(cfg SQLiteConfig, logger *slog.Logger) (*SQLiteRecorder, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.sqlite")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	logger.Info("audit recorder initialized", "path", cfg.Path)
	return &SQLiteRecorder{db: db, logger: logger}, nil
}

// Record persists a change.
func (r *SQLiteRecorder) Record(ctx context.Context, change Change) error {
	var prev interface{}
	if change.PreviousPolicyID != "" {
		prev = change.PreviousPolicyID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decision_changes (
			id, service, environment, previous_policy_id, matched_policy_id,
			log_level, trace_sample_rate, metric_interval_seconds, reason, changed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.Service, change.Environment, prev, change.MatchedPolicyID,
		change.LogLevel, change.TraceSampleRate, change.MetricIntervalSeconds,
		change.Reason, change.ChangedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record decision change: %w", err)
	}
	return nil
}

// Recent returns up to limit changes, newest first, filtered by service
// and environment when non-empty.
func (r *SQLiteRecorder) Recent(ctx context.Context, service, environment string, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, service, environment, previous_policy_id, matched_policy_id,
		       log_level, trace_sample_rate, metric_interval_seconds, reason, changed_at
		FROM decision_changes
		WHERE (? = '' OR service = ?) AND (? = '' OR environment = ?)
		ORDER BY changed_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, service, service, environment, environment, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		var prev sql.NullString
		var changedAt int64
		if err := rows.Scan(&c.ID, &c.Service, &c.Environment, &prev, &c.MatchedPolicyID,
			&c.LogLevel, &c.TraceSampleRate, &c.MetricIntervalSeconds, &c.Reason, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision change: %w", err)
		}
		c.PreviousPolicyID = prev.String
		c.ChangedAt = time.UnixMilli(changedAt).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision changes: %w", err)
	}
	return out, nil
}

// PruneBefore deletes changes older than the cutoff and returns the
// number removed.
func (r *SQLiteRecorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM decision_changes WHERE changed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune decision changes: %w", err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

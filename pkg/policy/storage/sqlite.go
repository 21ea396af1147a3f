package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"veridian-hq/attune/pkg/policy"
)

// SQLiteBackend implements Backend using SQLite for persistence. It is
// suitable for single-instance deployments where the policy set must
// survive restarts.
//
// The database runs in WAL mode with a single-writer connection pool, the
// same arrangement the signal-free parts of the control plane can tolerate:
// policy writes are rare and small.
type SQLiteBackend struct {
	db *sql.DB

	saveStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	loadStmt   *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite policy backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite policy backend.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{db: db}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO policies (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM policies WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`SELECT document FROM policies ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	return nil
}

// SavePolicy persists the policy document as JSON, replacing by id.
func (s *SQLiteBackend) SavePolicy(ctx context.Context, p *policy.Policy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy %q: %w", p.ID, err)
	}

	if _, err := s.saveStmt.ExecContext(ctx, p.ID, string(raw), time.Now().Unix()); err != nil {
		return &UnavailableError{Op: "save", Cause: err}
	}
	return nil
}

// DeletePolicy removes a policy by id.
func (s *SQLiteBackend) DeletePolicy(ctx context.Context, id string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
		return &UnavailableError{Op: "delete", Cause: err}
	}
	return nil
}

// LoadAll returns every persisted policy, decoded from its JSON document.
func (s *SQLiteBackend) LoadAll(ctx context.Context) ([]*policy.Policy, error) {
	rows, err := s.loadStmt.QueryContext(ctx)
	if err != nil {
		return nil, &UnavailableError{Op: "load", Cause: err}
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, &UnavailableError{Op: "load", Cause: err}
		}
		var p policy.Policy
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("failed to decode stored policy: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Op: "load", Cause: err}
	}

	if out == nil {
		out = []*policy.Policy{}
	}
	return out, nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteBackend) Close() error {
	for _, stmt := range []*sql.Stmt{s.saveStmt, s.deleteStmt, s.loadStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

package journal

import (
	"database/sql"
	"fmt"
)

// migration represents a versioned schema change.
type migration struct {
	version int
	up      string
}

// migrations is the ordered list of schema migrations.
// New migrations MUST be appended (never modify existing ones).
var migrations = []migration{
	{
		version: 1,
		up: `
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    total_rows INTEGER NOT NULL,
    duplicate_rows INTEGER NOT NULL,
    unique_rows INTEGER NOT NULL,
    uploaded INTEGER NOT NULL DEFAULT 0,
    object_key TEXT NOT NULL DEFAULT '',
    processed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_processed ON attachments(processed_at);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
`,
	},
}

// runMigrations applies all pending migrations inside a transaction.
func runMigrations(db *sql.DB) error {
	// Ensure the schema_version table exists (bootstrap).
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear schema_version for v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("set schema_version v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// getCurrentVersion returns the highest applied migration version, or 0 when
// no migration has run yet.
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

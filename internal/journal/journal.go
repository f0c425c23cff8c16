// Package journal provides a SQLite-backed record of attachment processing
// outcomes: how many rows each CSV carried, how many were duplicates, and
// whether the deduplicated file was uploaded.
//
// It uses modernc.org/sqlite (pure Go, no CGO). The database operates in WAL
// mode and automatically runs schema migrations on open.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Register the pure-Go SQLite driver. This does NOT require CGO.
	_ "modernc.org/sqlite"
)

// Entry is one processed attachment.
type Entry struct {
	RunID         string
	MessageID     string
	Filename      string
	TotalRows     int
	DuplicateRows int
	UniqueRows    int
	Uploaded      bool
	ObjectKey     string
	ProcessedAt   time.Time
}

// Totals aggregates the journal across all entries.
type Totals struct {
	Files         int
	TotalRows     int
	DuplicateRows int
	UniqueRows    int
	Uploads       int
}

// Journal wraps a *sql.DB connection to the journal database.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal database at dbPath with WAL mode and
// busy timeout. Migrations are applied automatically on open.
func Open(dbPath string) (*Journal, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("journal path must not be empty")
	}

	// WAL mode for concurrent access, 5s busy timeout for lock contention.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{
		db:   db,
		path: dbPath,
	}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts one processing outcome.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attachments (
			run_id, message_id, filename,
			total_rows, duplicate_rows, unique_rows,
			uploaded, object_key, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.MessageID, e.Filename,
		e.TotalRows, e.DuplicateRows, e.UniqueRows,
		e.Uploaded, e.ObjectKey, e.ProcessedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record attachment: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, message_id, filename,
		       total_rows, duplicate_rows, unique_rows,
		       uploaded, object_key, processed_at
		FROM attachments
		ORDER BY processed_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent attachments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var processedAt int64
		if err := rows.Scan(
			&e.RunID, &e.MessageID, &e.Filename,
			&e.TotalRows, &e.DuplicateRows, &e.UniqueRows,
			&e.Uploaded, &e.ObjectKey, &processedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attachment row: %w", err)
		}
		e.ProcessedAt = time.Unix(processedAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachment rows: %w", err)
	}

	return entries, nil
}

// Totals aggregates row and upload counts across the whole journal.
func (j *Journal) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_rows), 0),
		       COALESCE(SUM(duplicate_rows), 0),
		       COALESCE(SUM(unique_rows), 0),
		       COALESCE(SUM(uploaded), 0)
		FROM attachments`,
	).Scan(&t.Files, &t.TotalRows, &t.DuplicateRows, &t.UniqueRows, &t.Uploads)
	if err != nil {
		return Totals{}, fmt.Errorf("aggregate journal: %w", err)
	}
	return t, nil
}

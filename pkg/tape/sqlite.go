package tape

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id       TEXT PRIMARY KEY,
	session  TEXT NOT NULL,
	direction TEXT NOT NULL,
	payload  TEXT NOT NULL,
	status   INTEGER NOT NULL DEFAULT 0,
	recorded TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_session ON entries (session);
`

// SQLiteStore is a SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite tape file and ensures the schema.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening tape database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tape schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append stores one entry.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, session, direction, payload, status, recorded)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Session, string(e.Direction), e.Payload, e.Status, e.Recorded,
	)
	if err != nil {
		return fmt.Errorf("appending tape entry: %w", err)
	}
	return nil
}

// List returns entries for a session in recording order.
func (s *SQLiteStore) List(ctx context.Context, session string) ([]*Entry, error) {
	query := `SELECT id, session, direction, payload, status, recorded FROM entries`
	args := []any{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tape entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var direction string
		if err := rows.Scan(&e.ID, &e.Session, &direction, &e.Payload, &e.Status, &e.Recorded); err != nil {
			return nil, fmt.Errorf("scanning tape entry: %w", err)
		}
		e.Direction = Direction(direction)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tape entries: %w", err)
	}

	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

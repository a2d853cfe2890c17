package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT    NOT NULL,
	at_ms   INTEGER NOT NULL,
	rpm     INTEGER NOT NULL,
	payload BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_session ON snapshots(session, id);
`

// Store records snapshots in SQLite, one session per monitor run. It is a
// Publisher, so a monitor can record and republish the same stream.
type Store struct {
	db      *sql.DB
	session string
}

// OpenStore creates or opens the database at path and starts a session.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}
	return &Store{db: db, session: uuid.Must(uuid.NewV7()).String()}, nil
}

// Session identifies this run's rows.
func (s *Store) Session() string {
	return s.session
}

// Publish records one snapshot.
func (s *Store) Publish(snap Snapshot) error {
	return s.Record(context.Background(), snap)
}

// Record inserts one snapshot.
func (s *Store) Record(ctx context.Context, snap Snapshot) error {
	payload, err := Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO snapshots (session, at_ms, rpm, payload) VALUES (?, ?, ?, ?)",
		s.session, snap.Time, snap.RPM, payload)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// Recent returns up to n snapshots of session, oldest first. An empty
// session means the current one.
func (s *Store) Recent(ctx context.Context, session string, n int) ([]Snapshot, error) {
	if session == "" {
		session = s.session
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM (
			SELECT id, payload FROM snapshots WHERE session = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, session, n)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Sessions lists recorded sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session FROM snapshots GROUP BY session ORDER BY MIN(id)")
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

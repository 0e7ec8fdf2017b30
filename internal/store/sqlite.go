package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockinsights/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// RosterKey is the preference under which the company roster is saved.
const RosterKey = "COMPANY_LOCAL_STORAGE"

// Compile-time interface check.
var _ RosterStore = (*SQLiteStore)(nil)

// SQLiteStore implements RosterStore and a small session registry backed by
// a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// SessionRecord is a persisted dashboard session: its id and the startup
// query string it was created with.
type SessionRecord struct {
	ID        string
	Params    string
	CreatedAt time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore. ":memory:" is accepted.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS prefs (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		params     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
}

// migrate applies every migration newer than the database's user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return fmt.Errorf("recording schema version %d: %w", i+1, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Preferences
// ---------------------------------------------------------------------------

// SetPref stores value under key.
func (s *SQLiteStore) SetPref(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving pref %s: %w", key, err)
	}
	return nil
}

// GetPref returns the value under key and whether it exists.
func (s *SQLiteStore) GetPref(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading pref %s: %w", key, err)
	}
	return value, true, nil
}

// SaveRoster stores the roster as JSON under RosterKey.
func (s *SQLiteStore) SaveRoster(ctx context.Context, companies []domain.Company) error {
	if companies == nil {
		companies = []domain.Company{}
	}
	data, err := json.Marshal(companies)
	if err != nil {
		return fmt.Errorf("encoding roster: %w", err)
	}
	return s.SetPref(ctx, RosterKey, string(data))
}

// LoadRoster returns the saved roster, or nil if none was saved.
func (s *SQLiteStore) LoadRoster(ctx context.Context) ([]domain.Company, error) {
	value, ok, err := s.GetPref(ctx, RosterKey)
	if err != nil || !ok {
		return nil, err
	}
	var companies []domain.Company
	if err := json.Unmarshal([]byte(value), &companies); err != nil {
		return nil, fmt.Errorf("decoding roster: %w", err)
	}
	return companies, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// SaveSession records a session so it can be restored after a restart.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, params, created_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET params = excluded.params`,
		rec.ID, rec.Params, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteSession removes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns every saved session, oldest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, params, created_at FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var ms int64
		if err := rows.Scan(&rec.ID, &rec.Params, &ms); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}

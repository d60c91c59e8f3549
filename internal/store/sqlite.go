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

	"github.com/ppiankov/decisio/internal/model"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore persists sessions as JSON documents in a SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT    PRIMARY KEY,
			question   TEXT    NOT NULL,
			stage      TEXT    NOT NULL,
			version    INTEGER NOT NULL,
			created_at TEXT    NOT NULL,
			updated_at TEXT    NOT NULL,
			data       TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, sess *model.Session) error {
	snapshot := sess.Clone()
	snapshot.Version++
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var storedVersion int
	var storedStage string
	err = tx.QueryRowContext(ctx, `SELECT version, stage FROM sessions WHERE id = ?`, sess.ID).Scan(&storedVersion, &storedStage)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if sess.Version != 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, question, stage, version, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snapshot.ID, snapshot.Question, string(snapshot.Stage), snapshot.Version,
			formatTime(snapshot.CreatedAt), formatTime(snapshot.UpdatedAt), string(data))
	case err != nil:
		return fmt.Errorf("store: read version: %w", err)
	default:
		if err := checkVersion(sess.ID, storedVersion, model.Stage(storedStage), sess); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET stage = ?, version = ?, updated_at = ?, data = ? WHERE id = ? AND version = ?`,
			string(snapshot.Stage), snapshot.Version, formatTime(snapshot.UpdatedAt), string(data), snapshot.ID, sess.Version)
	}
	if err != nil {
		return fmt.Errorf("store: write session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	sess.Version = snapshot.Version
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("store: decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, question, stage, version, created_at, updated_at FROM sessions ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var stage, created, updated string
		if err := rows.Scan(&sum.ID, &sum.Question, &stage, &sum.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sum.Stage = model.Stage(stage)
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

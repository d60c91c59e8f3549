// Package store persists sessions across the clarification pause.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/decisio/internal/model"
)

var (
	// ErrNotFound means no session has the requested id
	ErrNotFound = errors.New("session not found")

	// ErrConflict means the session changed since it was loaded, or is
	// terminal and can no longer be written
	ErrConflict = errors.New("session was modified concurrently")
)

// SessionStore persists sessions with optimistic concurrency on
// Session.Version. Implementations are safe for concurrent use.
type SessionStore interface {
	// Save writes sess when the stored version equals sess.Version (0 for
	// a new session) and then increments sess.Version.
	Save(ctx context.Context, sess *model.Session) error

	// Load returns an independent copy of the stored session
	Load(ctx context.Context, id string) (*model.Session, error)

	// List returns summaries, newest first. limit <= 0 lists all.
	List(ctx context.Context, limit int) ([]Summary, error)

	Close() error
}

// Summary is the listing view of a stored session
type Summary struct {
	ID        string      `json:"id"`
	Question  string      `json:"question"`
	Stage     model.Stage `json:"stage"`
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func summarize(sess *model.Session) Summary {
	return Summary{
		ID:        sess.ID,
		Question:  sess.Question,
		Stage:     sess.Stage,
		Version:   sess.Version,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

// checkVersion applies the optimistic concurrency rule to a stored record
func checkVersion(id string, storedVersion int, storedStage model.Stage, sess *model.Session) error {
	if storedVersion != sess.Version {
		return fmt.Errorf("%w: %s is at version %d, write based on %d", ErrConflict, id, storedVersion, sess.Version)
	}
	if storedStage.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrConflict, id, storedStage)
	}
	return nil
}

// Open creates the store selected by config
func Open(config model.StoreConfig) (SessionStore, error) {
	switch config.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		s, err := NewSQLiteStore(config.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q (supported: sqlite, memory)", config.Driver)
	}
}

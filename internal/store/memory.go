package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/decisio/internal/model"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.Session)}
}

func (s *MemoryStore) Save(ctx context.Context, sess *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.sessions[sess.ID]; ok {
		if err := checkVersion(sess.ID, stored.Version, stored.Stage, sess); err != nil {
			return err
		}
	} else if sess.Version != 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}

	snapshot := sess.Clone()
	snapshot.Version++
	s.sessions[sess.ID] = snapshot
	sess.Version = snapshot.Version
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return stored.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, summarize(sess))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

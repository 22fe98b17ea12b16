package score

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocx/trustcore/internal/core"
)

// Store defines the interface for any score backend (memory, Spanner). The
// engine owns all mutation; stores only load and persist.
type Store interface {
	// Get returns the stored score, or core.ErrUnknownAgent.
	Get(ctx context.Context, id core.AgentID) (*TrustScore, error)

	// Put creates or replaces the stored score.
	Put(ctx context.Context, id core.AgentID, s *TrustScore) error

	// List returns all agent IDs with a stored score.
	List(ctx context.Context) ([]core.AgentID, error)

	Close() error
}

// MemoryStore is the default in-process score table.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[core.AgentID]*TrustScore
}

// NewMemoryStore creates an empty in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[core.AgentID]*TrustScore)}
}

func (s *MemoryStore) Get(_ context.Context, id core.AgentID) (*TrustScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[id]
	if !ok {
		return nil, fmt.Errorf("score for %s: %w", id, core.ErrUnknownAgent)
	}
	return sc.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, id core.AgentID, sc *TrustScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[id] = sc.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]core.AgentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]core.AgentID, 0, len(s.scores))
	for id := range s.scores {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocx/trustcore/internal/core"
)

// MemoryStore is the default in-process identity store. Safe for concurrent
// use; individual record mutation is atomic under the store lock.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[core.AgentID]*AgentIdentity
}

// NewMemoryStore creates an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[core.AgentID]*AgentIdentity)}
}

func (s *MemoryStore) Put(_ context.Context, agent *AgentIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id core.AgentID) (*AgentIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, core.ErrUnknownAgent)
	}
	return agent.Clone(), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id core.AgentID, status AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("identity %s: %w", id, core.ErrUnknownAgent)
	}
	agent.Status = status
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]core.AgentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]core.AgentID, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

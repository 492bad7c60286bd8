package state

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory
type MemoryStore struct {
	sessions map[string]map[string]*BookState
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]*BookState),
	}
}

func (s *MemoryStore) SaveSession(ctx context.Context, sessionID string, books map[string]*BookState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make(map[string]*BookState, len(books))
	for id, bs := range books {
		saved[id] = bs.Clone()
	}
	s.sessions[sessionID] = saved
	return nil
}

func (s *MemoryStore) LoadSession(ctx context.Context, sessionID string) (map[string]*BookState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	loaded := make(map[string]*BookState, len(books))
	for id, bs := range books {
		loaded[id] = bs.Clone()
	}
	return loaded, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

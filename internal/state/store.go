// Package state owns the persistent per-(session, book) decision state
package state

import (
	"context"
	"sync"
)

// History length kept per book; sized for the longest lookback any profile uses
const maxPriceHistory = 64

// BookState is the engine-owned mutable state for one (session, book) pair.
// Created lazily on first tick, reset in full when a session restarts, never
// shared across sessions.
type BookState struct {
	PriceHistory      []float64 `json:"price_history"`
	EwmaVariance      float64   `json:"ewma_variance"`
	LastMid           float64   `json:"last_mid"`
	LastFillTime      int64     `json:"last_fill_time"`
	CooldownUntil     int64     `json:"cooldown_until"`
	LossCooldownUntil int64     `json:"loss_cooldown_until"`
	LossCooldownRef   float64   `json:"loss_cooldown_ref"`
	WealthBaseline    float64   `json:"wealth_baseline"`
	InventoryBaseline float64   `json:"inventory_baseline"`
}

// PushMid appends a mid-price observation, keeping the history bounded
func (s *BookState) PushMid(mid float64) {
	s.PriceHistory = append(s.PriceHistory, mid)
	if len(s.PriceHistory) > maxPriceHistory {
		s.PriceHistory = s.PriceHistory[len(s.PriceHistory)-maxPriceHistory:]
	}
}

// Clone returns a deep copy safe to hand to background consumers
func (s *BookState) Clone() *BookState {
	cp := *s
	cp.PriceHistory = append([]float64(nil), s.PriceHistory...)
	return &cp
}

// Store persists serialized session state snapshots
type Store interface {
	SaveSession(ctx context.Context, sessionID string, books map[string]*BookState) error
	LoadSession(ctx context.Context, sessionID string) (map[string]*BookState, error)
	Close() error
}

// BookStateStore holds the live partitions, keyed by (session, book). The
// tick pipeline is the only writer; background readers get deep copies.
type BookStateStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*BookState
}

// NewBookStateStore creates an empty store
func NewBookStateStore() *BookStateStore {
	return &BookStateStore{
		sessions: make(map[string]map[string]*BookState),
	}
}

// Get returns the state for a (session, book) pair, creating the documented
// zero-value default on first access
func (s *BookStateStore) Get(sessionID, bookID string) *BookState {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, ok := s.sessions[sessionID]
	if !ok {
		books = make(map[string]*BookState)
		s.sessions[sessionID] = books
	}
	bs, ok := books[bookID]
	if !ok {
		bs = &BookState{}
		books[bookID] = bs
	}
	return bs
}

// ResetSession discards every book's state for the session
func (s *BookStateStore) ResetSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// RestoreSession replaces the session's partition, used when loading from a Store
func (s *BookStateStore) RestoreSession(sessionID string, books map[string]*BookState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := make(map[string]*BookState, len(books))
	for id, bs := range books {
		restored[id] = bs.Clone()
	}
	s.sessions[sessionID] = restored
}

// SnapshotSession returns a deep copy of the session's partition
func (s *BookStateStore) SnapshotSession(sessionID string) map[string]*BookState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	snapshot := make(map[string]*BookState, len(books))
	for id, bs := range books {
		snapshot[id] = bs.Clone()
	}
	return snapshot
}

// SessionCount returns the number of live sessions
func (s *BookStateStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

package state

import (
	"context"
	"sync"
	"time"

	"merchant-connect-layer/internal/domain"
)

type memoryEntry struct {
	state     domain.OAuthState
	expiresAt time.Time
}

// MemoryStore keeps OAuth state in process memory. It is only consistent for a
// single instance and loses every pending flow on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process state store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Save stores the record and purges expired entries
func (s *MemoryStore) Save(_ context.Context, token string, st domain.OAuthState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}

	s.entries[token] = memoryEntry{state: st, expiresAt: now.Add(ttl)}
	return nil
}

// Take returns the record and removes it. Expired records are still returned
// once so the caller can tell expired from unknown.
func (s *MemoryStore) Take(_ context.Context, token string) (*domain.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	delete(s.entries, token)
	st := e.state
	return &st, nil
}

// Peek returns the record without removing it
func (s *MemoryStore) Peek(_ context.Context, token string) (*domain.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	st := e.state
	return &st, nil
}

// Len reports the number of tracked tokens
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

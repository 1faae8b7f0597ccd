package services

import (
	"context"
	"sync"
	"time"
)

type sessionEntry struct {
	key       []byte
	expiresAt time.Time
}

// MemorySessionStore is the in-process SessionRepository used in tests and
// single-node development runs; the redis adapter replaces it in
// deployments.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]sessionEntry)}
}

func (s *MemorySessionStore) StoreClientKey(ctx context.Context, sessionID string, clientPublicKey []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := make([]byte, len(clientPublicKey))
	copy(key, clientPublicKey)
	s.entries[sessionID] = sessionEntry{key: key, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) GetClientKey(ctx context.Context, sessionID string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.key, true, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

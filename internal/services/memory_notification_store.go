package services

import (
	"context"
	"sync"

	"relaychat/internal/models"
)

// MemoryNotificationStore keeps the bounded notification history in a slice
// ordered newest first, matching the redis list adapter's semantics.
type MemoryNotificationStore struct {
	mu      sync.RWMutex
	history []models.Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

func (s *MemoryNotificationStore) Append(ctx context.Context, n models.Notification, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]models.Notification{n}, s.history...)
	if cap > 0 && len(s.history) > cap {
		s.history = s.history[:cap]
	}
	return nil
}

func (s *MemoryNotificationStore) Recent(ctx context.Context, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]models.Notification, limit)
	copy(out, s.history[:limit])
	return out, nil
}

func (s *MemoryNotificationStore) List(ctx context.Context, offset, limit int) ([]models.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.history)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]models.Notification, end-offset)
	copy(out, s.history[offset:end])
	return out, total, nil
}

package ports

import (
	"context"
	"time"

	"relaychat/internal/models"
)

// SessionRepository stores per-session key-exchange material. Entries carry
// a TTL matching the session lifetime; a missing entry means the session
// expired or never completed the exchange.
type SessionRepository interface {
	StoreClientKey(ctx context.Context, sessionID string, clientPublicKey []byte, ttl time.Duration) error
	GetClientKey(ctx context.Context, sessionID string) ([]byte, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// NotificationRepository keeps the bounded most-recent-N notification list
// used for replay on join.
type NotificationRepository interface {
	Append(ctx context.Context, n models.Notification, cap int) error
	Recent(ctx context.Context, limit int) ([]models.Notification, error)
	List(ctx context.Context, offset, limit int) ([]models.Notification, int, error)
}

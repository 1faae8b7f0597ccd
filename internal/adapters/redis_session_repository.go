package adapters

import (
	"context"
	"time"

	"github.com/go-redis/redis"
)

// RedisSessionRepository stores exchanged client public keys under the
// session id with a TTL equal to the session's remaining life, so expired
// sessions clean themselves up.
type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) StoreClientKey(ctx context.Context, sessionID string, clientPublicKey []byte, ttl time.Duration) error {
	return r.client.Set("session:"+sessionID, clientPublicKey, ttl).Err()
}

func (r *RedisSessionRepository) GetClientKey(ctx context.Context, sessionID string) ([]byte, bool, error) {
	raw, err := r.client.Get("session:" + sessionID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del("session:" + sessionID).Err()
}

package adapters

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis"

	"relaychat/internal/models"
)

const notificationHistoryKey = "notifications:history"

// RedisNotificationRepository keeps the bounded most-recent-N notification
// list in a redis list, newest first (LPUSH + LTRIM).
type RedisNotificationRepository struct {
	client *redis.Client
}

func NewRedisNotificationRepository(client *redis.Client) *RedisNotificationRepository {
	return &RedisNotificationRepository{client: client}
}

func (r *RedisNotificationRepository) Append(ctx context.Context, n models.Notification, cap int) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.client.LPush(notificationHistoryKey, raw).Err(); err != nil {
		return err
	}
	if cap > 0 {
		return r.client.LTrim(notificationHistoryKey, 0, int64(cap-1)).Err()
	}
	return nil
}

func (r *RedisNotificationRepository) Recent(ctx context.Context, limit int) ([]models.Notification, error) {
	out, _, err := r.rangeList(0, limit)
	return out, err
}

func (r *RedisNotificationRepository) List(ctx context.Context, offset, limit int) ([]models.Notification, int, error) {
	total, err := r.client.LLen(notificationHistoryKey).Result()
	if err != nil {
		return nil, 0, err
	}
	out, _, err := r.rangeList(offset, limit)
	return out, int(total), err
}

func (r *RedisNotificationRepository) rangeList(offset, limit int) ([]models.Notification, int, error) {
	if limit <= 0 {
		return nil, 0, nil
	}
	rows, err := r.client.LRange(notificationHistoryKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		var n models.Notification
		if err := json.Unmarshal([]byte(row), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

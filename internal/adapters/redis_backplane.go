package adapters

import (
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

const backplaneChannel = "relay:groups"

type backplaneFrame struct {
	Origin        string          `json:"origin"`
	Group         string          `json:"group"`
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data"`
	ExceptClient  string          `json:"exceptClient,omitempty"`
}

// RedisBackplane mirrors group emits across processes over redis pub/sub so
// a broadcast reaches connections held by other relay instances. Each
// instance tags its frames with an origin id and ignores its own.
type RedisBackplane struct {
	client *redis.Client
	origin string
	pubsub *redis.PubSub
	logger *slog.Logger
}

func NewRedisBackplane(client *redis.Client, logger *slog.Logger) *RedisBackplane {
	return &RedisBackplane{
		client: client,
		origin: uuid.New().String(),
		logger: logger,
	}
}

func (b *RedisBackplane) Publish(group, event string, data any, exceptClientID string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(backplaneFrame{
		Origin:       b.origin,
		Group:        group,
		Event:        event,
		Data:         raw,
		ExceptClient: exceptClientID,
	})
	if err != nil {
		return err
	}
	return b.client.Publish(backplaneChannel, frame).Err()
}

func (b *RedisBackplane) Subscribe(handler func(group, event string, data []byte, exceptClientID string)) error {
	b.pubsub = b.client.Subscribe(backplaneChannel)
	if _, err := b.pubsub.Receive(); err != nil {
		return err
	}

	go func() {
		for msg := range b.pubsub.Channel() {
			var frame backplaneFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("malformed backplane frame", "error", err)
				continue
			}
			if frame.Origin == b.origin {
				continue
			}
			handler(frame.Group, frame.Event, frame.Data, frame.ExceptClient)
		}
	}()
	return nil
}

func (b *RedisBackplane) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// DefaultTaskTTL bounds how long a published task can be validated
const DefaultTaskTTL = 7 * 24 * time.Hour

// RedisStore keeps tasks in Redis under "<prefix>:<handle>"
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTaskTTL
	}
	return &RedisStore{client: client, prefix: "railsettle:task", ttl: ttl}
}

// OpenRedisStore connects to the Redis server at url, e.g. redis://localhost:6379/0
func OpenRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, DefaultTaskTTL), nil
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + ":" + handle
}

func (s *RedisStore) Publish(ctx context.Context, payload models.TaskPayload) (string, error) {
	data, handle, err := Encode(payload)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(handle), string(data), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store task %s: %w", handle, err)
	}
	return handle, nil
}

func (s *RedisStore) Fetch(ctx context.Context, handle string) (models.TaskPayload, error) {
	data, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TaskPayload{}, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return models.TaskPayload{}, fmt.Errorf("failed to fetch task %s: %w", handle, err)
	}
	return decode(handle, data)
}

// Ping checks the server is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Backend() string {
	return "redis"
}

package revocation

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore backs the revocation store with a TCP-connected Redis. Used
// where a long-lived connection pool is available.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Denylist(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.SetEx(ctx, denyKey(token), "1", ttl).Err()
}

func (s *RedisStore) IsDenied(ctx context.Context, token string) (bool, error) {
	count, err := s.client.Exists(ctx, denyKey(token)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *RedisStore) CreateSession(ctx context.Context, id string, payload map[string]any, ttl time.Duration) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.client.SetEx(ctx, sessionKey(id), string(value), ttl).Err()
}

func (s *RedisStore) TouchSession(ctx context.Context, id string, ttl time.Duration) error {
	return s.client.Expire(ctx, sessionKey(id), ttl).Err()
}

func (s *RedisStore) SessionExists(ctx context.Context, id string) (bool, error) {
	count, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

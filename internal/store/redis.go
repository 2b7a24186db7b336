package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying connection for components sharing it, such as
// the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Replace(ctx context.Context, oldKey, newKey string, value []byte, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, oldKey)
	pipe.Set(ctx, newKey, value, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

func (s *RedisStore) Backend() string { return BackendRedis }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

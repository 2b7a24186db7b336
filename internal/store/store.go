package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

const connectTimeout = 3 * time.Second

// Store is a TTL key-value store for opaque blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns found=false with a nil error for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Replace deletes oldKey and writes newKey as one atomic step.
	Replace(ctx context.Context, oldKey, newKey string, value []byte, ttl time.Duration) error
	// Healthy reports backend reachability. It never fails.
	Healthy(ctx context.Context) bool
	Backend() string
	Close() error
}

// Open connects to Redis when redisURL is set and reachable, and otherwise
// falls back to an in-process store. It never returns an error.
func Open(ctx context.Context, redisURL string, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	if redisURL == "" {
		logger.Info("REDIS_URL not set, using in-memory store")
		return NewMemoryStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, using in-memory store", "error", err)
		return NewMemoryStore()
	}
	opts.DialTimeout = connectTimeout

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unreachable, using in-memory store", "addr", opts.Addr, "error", err)
		return NewMemoryStore()
	}

	logger.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return NewRedisStore(client)
}

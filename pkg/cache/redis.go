package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger is the logging surface the Redis cache needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Redis stores results under a key prefix with a TTL.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	log    Logger
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration, log Logger) *Redis {
	if log == nil {
		log = nopLogger{}
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Purge deletes every key under the prefix, SCAN by SCAN.
func (c *Redis) Purge(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			c.log.Warn("cache purge failed", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.log.Warn("cache purge failed", "error", err)
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

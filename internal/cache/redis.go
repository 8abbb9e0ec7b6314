package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a Redis connection as an advisory key-value store. Every
// operation absorbs transport errors: reads report absence, writes and
// deletes are best-effort. Callers must never fail because the cache did.
type Client struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

// Connect parses a redis:// URL, opens a client and verifies it with a ping.
// A nil Client is a valid configuration for consumers; callers should treat a
// connect error as "run without cache", not as fatal.
func Connect(url string, logger *zap.SugaredLogger) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb, logger: logger}, nil
}

// Get returns the cached value and true, or absence on any miss or error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debugw("cache get failed", "key", key, "err", err)
		}
		return nil, false
	}
	return raw, true
}

// Set stores a value with an expiry. Failures are logged and dropped.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Debugw("cache set failed", "key", key, "err", err)
	}
}

// DeleteMatching removes every key under the given prefix and returns how
// many were deleted. The prefix scan avoids tracking individual keys, which
// is what makes coarse namespace invalidation possible.
func (c *Client) DeleteMatching(ctx context.Context, prefix string) int {
	deleted := 0
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Debugw("cache delete failed", "key", iter.Val(), "err", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		c.logger.Debugw("cache scan failed", "prefix", prefix, "err", err)
	}
	return deleted
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

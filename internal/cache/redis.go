package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/pkg/utils"
)

// Redis stores entries in Redis under a key prefix.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	counters
}

// NewRedis connects to Redis and verifies the connection with a PING.
func NewRedis(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedis(rdb, cfg.KeyPrefix, ttl, logger), nil
}

func newRedis(rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		logger: utils.OrNop(logger).With(zap.String("component", "query-cache")),
	}
}

// Get returns the value for key. Redis errors are logged and count as misses.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.record(false)
		return nil, false
	}
	c.record(true)
	return data, true
}

// Set stores value with the configured TTL.
func (c *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate deletes every key under the prefix.
func (c *Redis) Invalidate(ctx context.Context) error {
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", zap.Int64("keys_deleted", deleted))
	return nil
}

// Stats reports hit and miss counters. Entries is not tracked for Redis.
func (c *Redis) Stats() Stats {
	return Stats{Type: "redis", Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close closes the connection pool.
func (c *Redis) Close() error {
	return c.rdb.Close()
}

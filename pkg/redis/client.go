// Package redis adapts go-redis/v9 to the searcher's result cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings once; a searcher without Redis runs uncached,
// so the caller decides what a failure means.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the raw bytes under key. A missing key yields an error for
// which IsMiss is true.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, key).Bytes()
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// GetInt64 reads a counter, treating a missing key as zero.
func (c *Client) GetInt64(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if IsMiss(err) {
		return 0, nil
	}
	return n, err
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

// unlinkBatch bounds both the SCAN count hint and the keys per UNLINK.
const unlinkBatch = 256

// DeleteMatching unlinks every key matching the glob pattern and returns how
// many were removed. UNLINK frees memory off the Redis main thread.
func (c *Client) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	keys := make([]string, 0, unlinkBatch)
	unlink := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, keys...).Result()
		removed += n
		keys = keys[:0]
		return err
	}
	it := c.rdb.Scan(ctx, 0, pattern, unlinkBatch).Iterator()
	for it.Next(ctx) {
		if keys = append(keys, it.Val()); len(keys) == unlinkBatch {
			if err := unlink(); err != nil {
				return removed, fmt.Errorf("unlinking %s: %w", pattern, err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return removed, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if err := unlink(); err != nil {
		return removed, fmt.Errorf("unlinking %s: %w", pattern, err)
	}
	return removed, nil
}

// IsMiss reports whether err means the key does not exist.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

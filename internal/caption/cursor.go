package caption

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cursor hands out the ring position at which the next request starts
// looking for a free credential. Values increase by one per call.
type Cursor interface {
	Next(ctx context.Context) (uint64, error)
}

// MemoryCursor is a process-local cursor.
type MemoryCursor struct {
	n atomic.Uint64
}

// Next implements Cursor.
func (c *MemoryCursor) Next(context.Context) (uint64, error) {
	return c.n.Add(1) - 1, nil
}

// RedisCursorConfig holds Redis connection configuration.
type RedisCursorConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisCursor keeps the cursor in a Redis counter so that several processes
// sharing the same keys rotate through them together.
type RedisCursor struct {
	client *redis.Client
	key    string
}

// NewRedisCursor connects to Redis and returns a cursor on cfg.Key.
func NewRedisCursor(cfg RedisCursorConfig) (*RedisCursor, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "alttext:credential-cursor"
	}

	return &RedisCursor{client: client, key: key}, nil
}

// Next implements Cursor.
func (c *RedisCursor) Next(ctx context.Context) (uint64, error) {
	v, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return uint64(v - 1), nil
}

// Close closes the Redis connection.
func (c *RedisCursor) Close() error {
	return c.client.Close()
}

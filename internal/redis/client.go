package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/retry"
)

// connectPolicy bounds the initial connection attempts: 50ms doubling up
// to 2s between tries.
var connectPolicy = retry.Policy{
	MaxAttempts:    6,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis connect failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
	},
}

// Client wraps a go-redis client with convenience methods.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client from a URL (e.g. "redis://localhost:6379")
// and verifies connectivity with bounded exponential backoff. An
// unreachable broker is reported as domain.ErrBrokerUnavailable.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	err = retry.DoVoid(ctx, connectPolicy, retry.AlwaysRetry, func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw go-redis client for advanced operations.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

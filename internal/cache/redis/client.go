// Package redis implements domain cache interfaces using go-redis/v9. Three
// concerns share one Client here: the two-tier request RateLimiter, the
// scheduler's cross-replica LockManager, and the market EventBus — all of
// which sit on the request/reconciler hot path, so connection setup favors
// bounded dial/command timeouts over the driver's defaults.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// DialTimeout bounds the initial TCP/TLS handshake. Zero uses go-redis's
	// built-in default (5s).
	DialTimeout time.Duration
	// CommandTimeout bounds every subsequent read/write on the connection.
	// Kept short since callers (rate limiter, lock manager, event bus) sit
	// on the request path and a hung Redis must not hang the relayer with
	// it. Zero uses go-redis's built-in defaults (3s read, 3s write).
	CommandTimeout time.Duration
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis Client and verifies connectivity with a bounded
// startup ping, retrying a few times before giving up — Redis is a hard
// dependency of app.wire and a container orchestrator restarting Redis and
// the relayer at the same moment should not fail the relayer's own startup.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	const (
		pingAttempts = 3
		pingBackoff  = 500 * time.Millisecond
	)
	var pingErr error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if pingErr = rdb.Ping(ctx).Err(); pingErr == nil {
			return &Client{rdb: rdb}, nil
		}
		if attempt < pingAttempts {
			select {
			case <-time.After(pingBackoff):
			case <-ctx.Done():
				attempt = pingAttempts
			}
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("redis: ping after %d attempts: %w", pingAttempts, pingErr)
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need direct
// access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting, backing the HTTP API's
// write and default tiers (spec §4.6).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Lock represents a held distributed lock. Extend refreshes the TTL without
// releasing the lock, for jobs (e.g. a finalization sweep working through a
// long queue) that can outlive the TTL they acquired the lock with. Unlock
// is safe to call more than once.
type Lock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Unlock()
}

// LockManager provides distributed locking, used to serialize a scheduler
// job across Relayer replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// EventBus publishes and subscribes to named channels of opaque byte
// payloads, backing the read-only WebSocket broadcast of market state
// transitions. It is fanout-only: publishing never blocks on delivery to any
// particular subscriber.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sidebet/relayer/internal/domain"
)

// unlockLua is a Lua script that deletes a lock key only if its value matches
// the caller's unique token. This prevents one holder from accidentally
// releasing another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua is a Lua script that resets a lock key's TTL only if its value
// still matches the caller's token — the same ownership check as unlockLua,
// applied to PEXPIRE instead of DEL, so a job that outlives its original TTL
// can keep its lock without risking a heartbeat racing past another
// replica's takeover.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL, a
// Lua-based conditional unlock, and a Lua-based conditional TTL extension.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	extendSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// redisLock is the domain.Lock returned by LockManager.Acquire.
type redisLock struct {
	lm       *LockManager
	key      string
	token    string
	released bool
}

// Extend resets the lock's TTL, as long as this holder's token is still the
// one stored in Redis. It returns domain.ErrLockHeld if the lock expired and
// was claimed by another replica in the meantime — the caller must treat
// that as a lost lock, not retry the extension.
func (l *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := l.lm.extendSc.Run(ctx, l.lm.rdb, []string{lockKey(l.key)}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis: extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return domain.ErrLockHeld
	}
	return nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *redisLock) Unlock() {
	if l.released {
		return
	}
	l.released = true

	// Use a background context so unlock succeeds even if the caller's
	// context is already cancelled.
	unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = l.lm.unlockSc.Run(unlockCtx, l.lm.rdb, []string{lockKey(l.key)}, l.token).Err()
}

// Acquire attempts to obtain a distributed lock for the given key with the
// specified TTL. On success it returns a domain.Lock that must be unlocked
// to release the lock, and can be extended if the caller's job runs longer
// than the original TTL.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lock, error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	return &redisLock{lm: lm, key: key, token: token}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)

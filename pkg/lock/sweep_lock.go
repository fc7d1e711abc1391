// Package lock provides a redis-backed leader lock so that exactly one node
// runs the tick sweep per interval. Cancellation requests do not use it:
// they coordinate through database row locks alone.
package lock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"procgrid/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	defaultLockKey     = "procgrid:sweep-lock"
	lockTTL            = 30 * time.Second // guards against a crashed leader holding the lock forever
	lockAcquireTimeout = 5 * time.Second
)

// SweepLock is the leader lock interface.
type SweepLock interface {
	// TryLock attempts to acquire the lock without blocking on a holder.
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases the lock if this instance holds it.
	Unlock(ctx context.Context) error

	// IsHeld checks whether this instance currently holds the lock.
	IsHeld() bool
}

// RedisSweepLock implements SweepLock on redis SET NX with a TTL. The lock
// value is unique per instance so an instance can never release a lock it
// does not own.
type RedisSweepLock struct {
	client    *redis.Client
	lockKey   string
	lockValue string
	ttl       time.Duration

	mu     sync.Mutex
	isHeld bool
}

// NewRedisSweepLock creates a sweep lock. A nil client degrades to a local
// no-contention lock for single-instance deployments.
func NewRedisSweepLock(client *redis.Client, lockKey string) *RedisSweepLock {
	if lockKey == "" {
		lockKey = defaultLockKey
	}
	return &RedisSweepLock{
		client:    client,
		lockKey:   lockKey,
		lockValue: fmt.Sprintf("%s-%d-%d", lockKey, time.Now().UnixNano(), rand.Int63()),
		ttl:       lockTTL,
	}
}

// TryLock attempts to acquire the lock via SET NX EX.
func (l *RedisSweepLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		logger.Warn("redis client is nil, sweep lock degrades to single-instance mode")
		l.mu.Lock()
		l.isHeld = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.lockKey, l.lockValue, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}

	l.mu.Lock()
	l.isHeld = acquired
	l.mu.Unlock()

	if acquired {
		logger.DebugCtx(ctx, "sweep lock acquired")
	} else {
		logger.DebugCtx(ctx, "sweep lock already held by another instance")
	}
	return acquired, nil
}

// Unlock releases the lock with a compare-and-delete Lua script so only the
// holder's own value is removed.
func (l *RedisSweepLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	held := l.isHeld
	l.isHeld = false
	l.mu.Unlock()

	if !held || l.client == nil {
		return nil
	}

	luaScript := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	result, err := l.client.Eval(ctx, luaScript, []string{l.lockKey}, l.lockValue).Result()
	if err != nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}

	if result.(int64) != 1 {
		logger.WarnCtx(ctx, "sweep lock expired or taken over before release")
	}
	return nil
}

// IsHeld checks whether this instance holds the lock.
func (l *RedisSweepLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isHeld
}

package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Only the owner token may release or extend a lock.
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker hands out named locks under a common key prefix.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLocker(client *redis.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock attempts to take the lock for name once. It returns
// ErrLockAcquisitionFailed when another holder owns it.
func (l *Locker) TryLock(ctx context.Context, name string) (*DistributedLock, error) {
	lock := &DistributedLock{
		client: l.client,
		key:    fmt.Sprintf("lock:%s:%s", l.prefix, name),
		token:  uuid.New().String(),
		ttl:    l.ttl,
	}
	ok, err := l.client.SetNX(ctx, lock.key, lock.token, lock.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lock.key, err)
	}
	if !ok {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	return lock, nil
}

// DistributedLock is a held Redis lock.
type DistributedLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Extend pushes the expiry out by ttl.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Release deletes the lock if it is still ours.
func (l *DistributedLock) Release(ctx context.Context) error {
	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

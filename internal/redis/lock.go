package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another caller currently holds the slot.
	ErrLockNotAcquired = errors.New("slot lock not acquired")
	// ErrLockUnavailable means Redis could not be asked; fn did not run.
	ErrLockUnavailable = errors.New("slot lock unavailable")
)

const releaseTimeout = time.Second

// Locker guards the claim of a single (provider, instant) slot across processes.
type Locker interface {
	WithSlotLock(ctx context.Context, providerID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error
}

// SlotLocker leases one Redis key per slot. The lease carries a random token so
// only its owner can release it, and it lapses on its own after ttl.
type SlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SlotLocker{client: client, ttl: ttl}
}

// SlotKey is the Redis key for one provider slot.
func SlotKey(providerID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%d", providerID, at.UTC().Unix())
}

// WithSlotLock runs fn while holding the slot lease. fn gets a context bounded
// by the lease so work cannot outlive the lock.
func (l *SlotLocker) WithSlotLock(ctx context.Context, providerID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := SlotKey(providerID, at)

	token, err := l.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	leaseCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(leaseCtx)
}

func (l *SlotLocker) acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	switch {
	case err != nil && ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		return "", fmt.Errorf("%w: %s: %w", ErrLockUnavailable, key, err)
	case !ok:
		return "", ErrLockNotAcquired
	}
	return token, nil
}

// compare-and-delete: a lease that lapsed and was taken by someone else stays put
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// release runs detached from ctx so a cancelled request still frees its lease.
func (l *SlotLocker) release(ctx context.Context, key, token string) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_ = releaseScript.Run(relCtx, l.client, []string{key}, token).Err()
}

type noopLocker struct{}

// NoopLocker runs fn without a distributed lock; the database constraint remains the guard.
func NoopLocker() Locker { return noopLocker{} }

func (noopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

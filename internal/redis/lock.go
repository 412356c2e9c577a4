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
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockLost is the cause of the held context when the lease could not
	// be extended.
	ErrLockLost = errors.New("lock lease lost")
)

// Locker serializes work per key across processes. Conversations lock on the
// guardian/session key, bookings on the date/time slot.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// redisLocker holds a lease on one key per lock and keeps extending it while
// fn runs.
type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func ConversationLockKey(guardianID, session string) string {
	return fmt.Sprintf("lock:conversation:%s:%s", guardianID, session)
}

func SlotLockKey(date, at string) string {
	return fmt.Sprintf("lock:slot:%sT%s", date, at)
}

// WithLock runs fn while holding key. It does not wait: a held key returns
// ErrLockNotAcquired at once. The context passed to fn is cancelled with
// ErrLockLost if the lease cannot be extended.
func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	heldCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go l.keepAlive(heldCtx, cancel, done, key, token)

	defer func() {
		close(done)
		cancel(nil)
		// ctx may already be done; release on a fresh one.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), time.Second)
		defer releaseCancel()
		_ = l.release(releaseCtx, key, token)
	}()

	return fn(heldCtx)
}

func (l *redisLocker) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}, key, token string) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := l.extend(ctx, key, token)
			if err != nil && ctx.Err() != nil {
				return
			}
			if err != nil || !extended {
				cancel(ErrLockLost)
				return
			}
		}
	}
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (l *redisLocker) extend(ctx context.Context, key, token string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", key, err)
	}
	return n == 1, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("appointment lock not acquired")
)

// Locker is used by the outcome service to guard the read-latest-then-insert
// sequence per appointment id. Different ids never share a lock.
type Locker interface {
	WithAppointmentLock(ctx context.Context, appointmentID int64, fn func(ctx context.Context) error) error
}

const lockRetryInterval = 25 * time.Millisecond

type redisAppointmentLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisAppointmentLocker creates a locker that uses a per appointment Redis key.
// A held lock is retried for up to wait before ErrLockNotAcquired is returned.
func NewRedisAppointmentLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisAppointmentLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(appointmentID int64) string {
	return "lock:appointment-outcome:" + strconv.FormatInt(appointmentID, 10)
}

func (l *redisAppointmentLocker) WithAppointmentLock(ctx context.Context, appointmentID int64, fn func(ctx context.Context) error) error {
	key := lockKey(appointmentID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisAppointmentLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire appointment lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisAppointmentLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release appointment lock: %w", err)
	}
	return nil
}

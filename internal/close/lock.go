package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises closing cycles across processes.
type Locker interface {
	// WithLock runs fn while holding the lock or returns ErrLockHeld.
	WithLock(ctx context.Context, fn func(context.Context) error) error
}

// LockKey is the redis key guarding closing cycles.
const LockKey = "ledger:closing:lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-instance redis lock with a per-holder token.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLock constructs a lock on LockKey expiring after ttl.
func NewRedisLock(client redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &RedisLock{client: client, key: LockKey, ttl: ttl}
}

// WithLogger sets the logger used to report a lost lock.
func (l *RedisLock) WithLogger(logger *slog.Logger) {
	l.logger = logger
}

// WithLock implements Locker. The lock is released with the caller's
// context detached from cancellation so a shutdown never strands it. A lock
// that expired under a successful fn is only logged: the work has committed.
func (l *RedisLock) WithLock(ctx context.Context, fn func(context.Context) error) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("close: acquire lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}

	fnErr := fn(ctx)

	released, err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{l.key}, token).Int()
	switch {
	case err != nil:
		return errors.Join(fnErr, fmt.Errorf("close: release lock: %w", err))
	case released == 0 && fnErr != nil:
		return errors.Join(fnErr, ErrLockLost)
	case released == 0:
		l.log().Warn("closing lock lost before release", slog.String("key", l.key), slog.Duration("ttl", l.ttl))
	}
	return fnErr
}

func (l *RedisLock) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// Holder returns the token of the current lock holder, or "" when free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	token, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

type noLock struct{}

func (noLock) WithLock(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

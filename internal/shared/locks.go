package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// TransactionLockKey builds redis keys guarding a single transaction.
func TransactionLockKey(kind Kind, id int64) string {
	return fmt.Sprintf("ledgersync:txn:%s:%d:lock", kind, id)
}

// ErrLockBusy is returned when another caller holds the lock after all retries.
var ErrLockBusy = errors.New("transaction is being modified by another request")

// RedisLocker serialises writers using redis based locks.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker wraps a redis client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	}
}

// Lock obtains key and returns the release callback.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	return func() {
		// ctx may already be cancelled by the time the caller unwinds.
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

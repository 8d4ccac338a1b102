package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type Lock struct {
	Key   string
	Value string
}

// Locker hands out SET NX PX locks under a common key prefix.
type Locker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLocker(rdb *redis.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Acquire returns ok=false without error when someone else holds the lock.
func (l *Locker) Acquire(ctx context.Context, name string) (Lock, bool, error) {
	lock := Lock{Key: l.prefix + name, Value: uuid.NewString()}
	ok, err := l.rdb.SetNX(ctx, lock.Key, lock.Value, l.ttl).Result()
	if err != nil {
		return Lock{}, false, fmt.Errorf("queue.Acquire %s: %w", lock.Key, err)
	}
	return lock, ok, nil
}

// Release reports false when the lock had already expired or changed hands.
func (l *Locker) Release(ctx context.Context, lock Lock) (bool, error) {
	deleted, err := releaseScript.Run(ctx, l.rdb, []string{lock.Key}, lock.Value).Int64()
	if err != nil {
		return false, fmt.Errorf("queue.Release %s: %w", lock.Key, err)
	}
	return deleted == 1, nil
}

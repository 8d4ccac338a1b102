package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when the wait timed out with nothing queued.
var ErrEmpty = errors.New("queue: empty")

// StatsQueue is a Redis list of user ids whose stats need recomputing.
// Producers LPUSH, the worker BRPOPs, so ids are handled oldest first.
type StatsQueue struct {
	rdb  *redis.Client
	name string
}

func NewStatsQueue(rdb *redis.Client, name string) *StatsQueue {
	return &StatsQueue{rdb: rdb, name: name}
}

func (q *StatsQueue) Name() string {
	return q.name
}

func (q *StatsQueue) Enqueue(ctx context.Context, userID string) error {
	if err := q.rdb.LPush(ctx, q.name, userID).Err(); err != nil {
		return fmt.Errorf("queue.Enqueue %s: %w", q.name, err)
	}
	return nil
}

// Dequeue blocks for up to timeout. A zero timeout blocks until ctx is done.
func (q *StatsQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		return "", err
	}
	// res is [queueName, value]
	if len(res) < 2 || res[1] == "" {
		return "", ErrEmpty
	}
	return res[1], nil
}

func (q *StatsQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

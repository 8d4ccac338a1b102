// Package cache holds the Redis-backed caches: derived stats views and
// session token revocation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"preecode/internal/domain/stats"
)

const (
	statsKeyPrefix = "stats:view:"
	statsGenPrefix = "stats:gen:"
	// Generations only need to outlive computations that started before an
	// invalidation; an expired counter reads as 0 and still mismatches.
	statsGenTTL = 24 * time.Hour
)

// setIfGenScript writes the view only while the generation counter still
// holds the value read before computing it.
var setIfGenScript = redis.NewScript(`
	local cur = redis.call("get", KEYS[1])
	if not cur then cur = "0" end
	if cur == ARGV[1] then
		redis.call("set", KEYS[2], ARGV[2], "px", ARGV[3])
		return 1
	end
	return 0
`)

type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func StatsKey(userID string) string {
	return statsKeyPrefix + userID
}

func statsGenKey(userID string) string {
	return statsGenPrefix + userID
}

// Get reports ok=false on a miss.
func (c *StatsCache) Get(ctx context.Context, userID string) (*stats.View, bool, error) {
	raw, err := c.rdb.Get(ctx, StatsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache.Get stats %s: %w", userID, err)
	}
	var view stats.View
	if err := json.Unmarshal(raw, &view); err != nil {
		// Treat a corrupt entry as a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &view, true, nil
}

// Generation returns the user's invalidation counter, 0 if never invalidated.
func (c *StatsCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, statsGenKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache.Generation stats %s: %w", userID, err)
	}
	return gen, nil
}

// SetIfGeneration stores view unless the user was invalidated after gen was
// read. stored=false means a newer computation owns the entry.
func (c *StatsCache) SetIfGeneration(ctx context.Context, userID string, gen int64, view *stats.View) (bool, error) {
	raw, err := json.Marshal(view)
	if err != nil {
		return false, fmt.Errorf("cache.SetIfGeneration stats %s: %w", userID, err)
	}
	keys := []string{statsGenKey(userID), StatsKey(userID)}
	stored, err := setIfGenScript.Run(ctx, c.rdb, keys, strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("cache.SetIfGeneration stats %s: %w", userID, err)
	}
	return stored == 1, nil
}

// Invalidate bumps the generation and drops the cached view in one round trip.
func (c *StatsCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, statsGenKey(userID))
		pipe.Expire(ctx, statsGenKey(userID), statsGenTTL)
		pipe.Del(ctx, StatsKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.Invalidate stats %s: %w", userID, err)
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "auth:revoked:"
	cutoffKeyPrefix  = "auth:cutoff:"
)

// RevocationStore is the server-side denylist for session tokens. Entries
// expire with the tokens they cover, so the keyspace stays bounded.
type RevocationStore struct {
	rdb *redis.Client
}

func NewRevocationStore(rdb *redis.Client) *RevocationStore {
	return &RevocationStore{rdb: rdb}
}

// Revoke denylists a single token id until ttl elapses.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache.Revoke %s: %w", tokenID, err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("cache.IsRevoked %s: %w", tokenID, err)
	}
	return n > 0, nil
}

// SetCutoff invalidates every token for userID issued up to at, at
// millisecond resolution. ttl should be the token lifetime: after that no
// older token can still be valid.
func (s *RevocationStore) SetCutoff(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	val := strconv.FormatInt(at.UnixMilli(), 10)
	if err := s.rdb.Set(ctx, cutoffKeyPrefix+userID, val, ttl).Err(); err != nil {
		return fmt.Errorf("cache.SetCutoff %s: %w", userID, err)
	}
	return nil
}

// Cutoff returns the zero time when no cutoff is set.
func (s *RevocationStore) Cutoff(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.rdb.Get(ctx, cutoffKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("cache.Cutoff %s: %w", userID, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

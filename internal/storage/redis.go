package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const retryCountTTL = 24 * time.Hour

// RedisStore tracks what was scraped recently: finished queries, visited
// listing pages and per-job retry counts. Keys are hashed so raw queries
// and URLs never need escaping.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MarkScraped records that a query finished so repeat requests inside the
// TTL can be served from Postgres instead of a browser.
func (s *RedisStore) MarkScraped(ctx context.Context, cacheKey string, ttl time.Duration) error {
	key := fmt.Sprintf("scraped:%s", hashKey(cacheKey))
	return s.client.Set(ctx, key, time.Now().Format(time.RFC3339), ttl).Err()
}

// RecentlyScraped reports whether the query finished within its TTL.
func (s *RedisStore) RecentlyScraped(ctx context.Context, cacheKey string) (bool, error) {
	key := fmt.Sprintf("scraped:%s", hashKey(cacheKey))
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records a visited listing page so deep fetches skip it next run.
func (s *RedisStore) MarkSeen(ctx context.Context, url string, ttl time.Duration) error {
	key := fmt.Sprintf("seen:%s", hashKey(url))
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// WasSeen reports whether the listing page was visited within its TTL.
func (s *RedisStore) WasSeen(ctx context.Context, url string) (bool, error) {
	key := fmt.Sprintf("seen:%s", hashKey(url))
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrJobRetries bumps the failure count for a job and returns the new
// value. The counter expires on its own; callers only read it to decide
// whether a job is worth re-queueing.
func (s *RedisStore) IncrJobRetries(ctx context.Context, jobID string) (int64, error) {
	key := fmt.Sprintf("retry:%s", jobID)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	s.client.Expire(ctx, key, retryCountTTL)
	return n, nil
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

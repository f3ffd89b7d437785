package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redis/go-redis/v9"
)

// RateLimitStore tracks per-(credentialId, agentId) token buckets so the
// rate_limit constraint can be enforced across checkouts.
// MemoryRateLimitStore is the default for the single-process model;
// RedisRateLimitStore lets multiple instances of the embedding process share
// the same counters.
type RateLimitStore interface {
	// Allow reports whether one more checkout is permitted for key right
	// now, given at most maxPerInterval checkouts per interval (e.g. 10 per
	// time.Minute), and records the checkout if so.
	Allow(ctx context.Context, key string, maxPerInterval int, interval time.Duration) (bool, error)
}

// MemoryRateLimitStore is a process-local token bucket per key, built on
// golang.org/x/time/rate. Buckets are created lazily and never evicted;
// the vault service's process lifetime bounds the map's size in practice
// (one bucket per distinct key, threshold and interval ever checked).
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewMemoryRateLimitStore constructs an empty store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{limiters: make(map[string]*rate.Limiter)}
}

func (s *MemoryRateLimitStore) Allow(_ context.Context, key string, maxPerInterval int, interval time.Duration) (bool, error) {
	if maxPerInterval <= 0 {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketKey := fmt.Sprintf("%s|%d|%s", key, maxPerInterval, interval)
	lim, ok := s.limiters[bucketKey]
	if !ok {
		ratePerSec := rate.Limit(float64(maxPerInterval) / interval.Seconds())
		lim = rate.NewLimiter(ratePerSec, maxPerInterval)
		s.limiters[bucketKey] = lim
	}
	return lim.Allow(), nil
}

// RedisRateLimitStore backs the same interface with a shared Redis INCR +
// EXPIRE counter, for deployments running more than one instance of the
// embedding process against the same store file over a network filesystem.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore wraps an already-configured client.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, maxPerInterval int, interval time.Duration) (bool, error) {
	if maxPerInterval <= 0 {
		return true, nil
	}
	redisKey := "credvault:ratelimit:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("policy: redis incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, interval).Err(); err != nil {
			return false, fmt.Errorf("policy: redis expire: %w", err)
		}
	}
	return count <= int64(maxPerInterval), nil
}

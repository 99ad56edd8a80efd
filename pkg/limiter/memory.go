package limiter

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// MemoryLimiter is an in-process token-bucket rate limiter.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use RedisLimiter
// when you need a single global limit across multiple instances; use
// MemoryLimiter in tests and local development as a fast, dependency-free
// stand-in with identical Allow semantics (it calls refill, whose
// arithmetic RedisLimiter's Lua script mirrors).
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
}

// NewMemoryLimiter constructs a MemoryLimiter with empty state.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]bucket),
	}
}

// Allow checks whether a request for the given identity should be allowed
// under the provided limit. Each call has a fixed cost of 1 token.
func (m *MemoryLimiter) Allow(_ context.Context, id Identity, limit Limit) (Decision, error) {
	if id.Key == "" {
		return Decision{}, &Error{Kind: KindInvalidRequest, Op: "allow", Err: errEmptyKey}
	}
	if limit.Burst <= 0 || limit.RatePerSecond() <= 0 {
		return Decision{}, &Error{Kind: KindPolicyMisconfig, Op: "allow", Err: errBadPolicy}
	}
	if rate := limit.RatePerSecond(); math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Decision{}, &Error{Kind: KindInvalidRequest, Op: "allow", Err: errors.New("non-finite rate")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := string(id.Namespace) + ":" + id.Key

	b, exists := m.buckets[key]
	if !exists {
		b = bucket{
			tokens:     float64(limit.Burst),
			lastRefill: now,
			capacity:   float64(limit.Burst),
			rate:       limit.RatePerSecond(),
		}
	}

	newBucket, dec := refill(b, now, 1.0)
	m.buckets[key] = newBucket
	return dec, nil
}

package limiter

import (
	"context"
	"time"
)

// Namespace groups identifiers that should never share bucket state even if
// their Key happens to collide (for example "api_key" vs "ip").
type Namespace string

// Limit is the (capacity, rate) policy a caller wants enforced for one Allow
// call. It is resolved fresh per request; only a bucket's own stored fields
// are authoritative once the bucket already exists in the backing store
// (see RedisLimiter.Allow).
type Limit struct {
	Rate   float64       // tokens earned per Period
	Period time.Duration // the window Rate is measured over
	Burst  int64         // bucket capacity, also the max immediate burst
}

// RatePerSecond expresses the limit as tokens added per second.
func (l Limit) RatePerSecond() float64 {
	if l.Period <= 0 {
		return 0
	}
	return l.Rate / l.Period.Seconds()
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allow      bool
	Remaining  int64
	RetryAfter time.Duration
	ResetTime  time.Time
}

// Identity is "who" is being rate limited: Namespace is a logical grouping
// (for example "api_key", "ip"), Key is the identifier within it.
type Identity struct {
	Namespace Namespace
	Key       string
}

// RateLimiter is satisfied by every bucket backend in this package.
type RateLimiter interface {
	Allow(ctx context.Context, id Identity, limit Limit) (Decision, error)
}

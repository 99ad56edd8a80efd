package limiter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// RedisLimiter is a distributed token-bucket limiter backed by Redis. It
// performs the full load-refill-write cycle for one identity's bucket in a
// single EVALSHA round trip. Redis runs each script invocation to
// completion before starting another, so concurrent callers across many
// process instances never observe a torn write or a stale pre-state; they
// are served in the order their calls reach Redis.
type RedisLimiter struct {
	client    *redis.Client
	scriptSHA string
	opts      options

	availMu   sync.Mutex
	failCount int
	latched   bool
}

// NewRedisLimiter pings client and loads the token-bucket script into
// Redis's script cache, failing fast if either does not succeed.
func NewRedisLimiter(client *redis.Client, opts ...Option) (*RedisLimiter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &Error{Kind: KindStoreUnavailable, Op: "ping", Err: err}
	}

	sha, err := client.ScriptLoad(ctx, tokenBucketScript).Result()
	if err != nil {
		return nil, &Error{Kind: KindStoreUnavailable, Op: "script_load", Err: err}
	}

	return &RedisLimiter{
		client:    client,
		scriptSHA: sha,
		opts:      o,
	}, nil
}

// Available reports whether Redis is reachable. It is the health signal the
// degradation policy consults before every admission check.
//
// With MaxReconnectAttempts unset (0), every call pings fresh. With it set,
// a run of that many consecutive failed pings latches Available false; once
// latched, it still pings on every call (without counting further failures)
// and keeps returning false until a ping succeeds, at which point the
// failure count resets and the latch clears.
func (r *RedisLimiter) Available(ctx context.Context) bool {
	if r.opts.maxReconnectAttempts <= 0 {
		return r.ping(ctx)
	}

	r.availMu.Lock()
	if r.latched {
		r.availMu.Unlock()
		if r.ping(ctx) {
			r.availMu.Lock()
			r.failCount = 0
			r.latched = false
			r.availMu.Unlock()
			return true
		}
		return false
	}
	r.availMu.Unlock()

	if r.ping(ctx) {
		r.availMu.Lock()
		r.failCount = 0
		r.availMu.Unlock()
		return true
	}

	r.availMu.Lock()
	r.failCount++
	if r.failCount >= r.opts.maxReconnectAttempts {
		r.latched = true
	}
	r.availMu.Unlock()
	return false
}

func (r *RedisLimiter) ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

func (r *RedisLimiter) key(id Identity) string {
	return r.opts.prefix + string(id.Namespace) + ":" + id.Key
}

// transientRetryBackoff is the pause before the single inline retry of a
// KindStoreTransient evalsha call. Short on purpose: it exists to ride out
// a single slow round trip, not to hide a down Redis from the caller.
const transientRetryBackoff = 20 * time.Millisecond

// Allow implements the bucket-store contract: compute the key, run the
// atomic script, translate its reply, and record metrics. A cost of 1 token
// per call is the only cost this package supports; higher-cost endpoints
// must call Allow more than once or use a dedicated identity.
//
// A KindStoreTransient failure (the per-call timeout expired) is retried
// once inline after a short backoff. If the retry also fails, the error is
// promoted to KindStoreUnavailable so the caller treats it as a store-down
// condition rather than retrying further itself.
func (r *RedisLimiter) Allow(ctx context.Context, id Identity, limit Limit) (Decision, error) {
	if id.Key == "" {
		return Decision{}, &Error{Kind: KindInvalidRequest, Op: "allow", Err: errors.New("empty identity key")}
	}
	if limit.Burst <= 0 || limit.RatePerSecond() <= 0 {
		return Decision{}, &Error{Kind: KindPolicyMisconfig, Op: "allow", Err: fmt.Errorf("burst=%d rate=%v", limit.Burst, limit.RatePerSecond())}
	}
	if rate := limit.RatePerSecond(); math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Decision{}, &Error{Kind: KindInvalidRequest, Op: "allow", Err: fmt.Errorf("non-finite rate %v", rate)}
	}

	dec, err := r.evalOnce(ctx, id, limit)
	if err == nil {
		return dec, nil
	}

	var lerr *Error
	if !errors.As(err, &lerr) || !lerr.Retryable() {
		return Decision{}, err
	}

	select {
	case <-time.After(transientRetryBackoff):
	case <-ctx.Done():
		return Decision{}, err
	}

	dec, retryErr := r.evalOnce(ctx, id, limit)
	if retryErr == nil {
		return dec, nil
	}
	return Decision{}, &Error{Kind: KindStoreUnavailable, Op: "evalsha", Err: retryErr}
}

// evalOnce runs the token-bucket script exactly once and translates the
// reply, without retrying.
func (r *RedisLimiter) evalOnce(ctx context.Context, id Identity, limit Limit) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	start := time.Now()
	key := r.key(id)
	now := float64(time.Now().UnixMicro()) / 1e6
	const cost = 1.0

	cmd := r.client.EvalSha(ctx, r.scriptSHA, []string{key},
		float64(limit.Burst),
		limit.RatePerSecond(),
		now,
		cost,
		int64(r.opts.ttl.Seconds()),
	)

	result, err := cmd.Result()
	r.opts.recorder.Observe("ratelimit.latency", time.Since(start).Seconds(), map[string]string{"namespace": string(id.Namespace)})

	if err != nil {
		r.opts.recorder.Add("ratelimit.error", 1, map[string]string{"namespace": string(id.Namespace)})
		if ctx.Err() != nil {
			return Decision{}, &Error{Kind: KindStoreTransient, Op: "evalsha", Err: ctx.Err()}
		}
		return Decision{}, &Error{Kind: KindStoreUnavailable, Op: "evalsha", Err: err}
	}

	r.opts.recorder.Add("ratelimit.call", 1, map[string]string{"namespace": string(id.Namespace)})

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return Decision{}, &Error{Kind: KindStoreCorruption, Op: "evalsha", Err: errors.New("invalid lua response format")}
	}

	allowedVal, _ := values[0].(int64)
	remainingVal, _ := values[1].(int64)
	retryAfterFloat := convertToFloat(values[2])
	resetTimeFloat := convertToFloat(values[3])

	dec := Decision{
		Allow:      allowedVal == 1,
		Remaining:  remainingVal,
		RetryAfter: time.Duration(retryAfterFloat * float64(time.Second)),
		ResetTime:  time.UnixMicro(int64(resetTimeFloat * 1e6)),
	}
	if !dec.Allow {
		r.opts.recorder.Add("ratelimit.denied", 1, map[string]string{"namespace": string(id.Namespace)})
	}
	return dec, nil
}

func convertToFloat(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

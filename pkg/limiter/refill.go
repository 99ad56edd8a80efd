package limiter

import (
	"math"
	"time"
)

// bucket is the in-memory shape the refill engine operates on. It mirrors
// the hash fields persisted by RedisLimiter one-for-one.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	capacity   float64
	rate       float64 // tokens per second
}

// refill is a pure function of (bucket, now): it never performs I/O and
// never fails. It is the only place the token-bucket arithmetic lives; both
// MemoryLimiter and the embedded Lua script (token_bucket.lua) implement
// this same algorithm, the Lua copy necessarily duplicating it since the
// redis backend must do load+compute+write in a single round trip.
func refill(b bucket, now time.Time, cost float64) (bucket, Decision) {
	elapsedSeconds := now.Sub(b.lastRefill).Seconds()
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	refilled := b.tokens + elapsedSeconds*b.rate
	if refilled > b.capacity {
		refilled = b.capacity
	}

	newBucket := bucket{
		lastRefill: now,
		capacity:   b.capacity,
		rate:       b.rate,
	}

	if refilled >= cost {
		newBucket.tokens = refilled - cost
		return newBucket, Decision{
			Allow:      true,
			Remaining:  int64(math.Floor(newBucket.tokens)),
			RetryAfter: 0,
			ResetTime:  now,
		}
	}

	newBucket.tokens = refilled
	missing := cost - refilled
	var retryAfter time.Duration
	if b.rate > 0 {
		retryAfter = time.Duration(math.Ceil(missing/b.rate) * float64(time.Second))
	}
	return newBucket, Decision{
		Allow:      false,
		Remaining:  0,
		RetryAfter: retryAfter,
		ResetTime:  now.Add(retryAfter),
	}
}

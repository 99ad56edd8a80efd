package limiter

import "time"

const (
	defaultPrefix  = "ratelimit:"
	defaultTimeout = 5 * time.Second
	defaultTTL     = 24 * time.Hour
)

// options holds the configurable parameters of a RedisLimiter. It is built
// up by Option funcs passed to NewRedisLimiter.
type options struct {
	prefix               string
	timeout              time.Duration
	ttl                  time.Duration
	recorder             MetricsRecorder
	maxReconnectAttempts int
}

func defaultOptions() options {
	return options{
		prefix:   defaultPrefix,
		timeout:  defaultTimeout,
		ttl:      defaultTTL,
		recorder: &NoOpMetricsRecorder{},
		// 0 means unbounded: Available pings on every call and never latches.
		maxReconnectAttempts: 0,
	}
}

// Option configures a RedisLimiter at construction time.
type Option func(*options)

// WithPrefix sets the key prefix every bucket is stored under (default
// "ratelimit:").
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithTimeout sets the per-operation context timeout applied to the Redis
// round trip inside Allow (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTTL sets the TTL refreshed on every successful bucket write (default
// 24h, matching the bucket-idle horizon below which an idle identity's
// state is allowed to disappear).
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithRecorder injects a custom MetricsRecorder (default is a no-op).
func WithRecorder(r MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithMaxReconnectAttempts bounds the number of consecutive failed pings
// Available tolerates before latching unavailable (default 0, unbounded:
// every call pings fresh and never latches). Once latched, Available keeps
// returning false until a ping succeeds, at which point the counter resets
// and the latch clears.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) { o.maxReconnectAttempts = n }
}

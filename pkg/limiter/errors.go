package limiter

import (
	"errors"
	"fmt"
)

var (
	errEmptyKey = errors.New("empty identity key")
	errBadPolicy = errors.New("policy burst/rate must be positive")
)

// Kind classifies the error returned by a RateLimiter so that callers (the
// admission middleware, in particular) can decide how to degrade without
// string-matching error text.
type Kind int

const (
	// KindInvalidRequest covers an empty identifier or non-finite policy
	// values. Never retried.
	KindInvalidRequest Kind = iota
	// KindStoreUnavailable means the backing store is known not-ready.
	KindStoreUnavailable
	// KindStoreTransient means one operation failed or timed out; the
	// caller may retry once before treating it as KindStoreUnavailable.
	KindStoreTransient
	// KindStoreCorruption means the store's reply to the bucket script did
	// not have the expected shape; no Decision is produced. Unparsable or
	// negative fields inside a stored bucket do not produce this kind:
	// token_bucket.lua replaces them with the caller's policy values and
	// does not report or log the substitution.
	KindStoreCorruption
	// KindPolicyMisconfig means capacity <= 0 or rate <= 0 came from the
	// policy resolver itself.
	KindPolicyMisconfig
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindStoreTransient:
		return "store_transient"
	case KindStoreCorruption:
		return "store_corruption"
	case KindPolicyMisconfig:
		return "policy_misconfig"
	default:
		return "unknown"
	}
}

// Error is the typed error every RateLimiter backend in this package
// returns. It never carries store-internal detail (key names, driver
// errors) in a form meant for an HTTP client; Unwrap exposes the cause for
// logging only.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("limiter: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("limiter: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether this is a transient condition worth one inline
// retry rather than an immediate unavailable verdict. RedisLimiter.Allow
// consults it to decide whether to retry.
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreTransient
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/flarenet/backend/internal/ratelimit/policy"
	"github.com/flarenet/backend/pkg/limiter"
	"github.com/rs/zerolog"
)

// StoreAvailability reports whether the shared store is currently reachable.
// RedisLimiter satisfies this via its Available method; MemoryLimiter has no
// equivalent notion and is always available.
type StoreAvailability interface {
	Available(ctx context.Context) bool
}

// AnalyticsSink records one row per admission decision in the platform's
// analytics store. It is a side channel: the middleware never lets a sink
// error change the response it sends.
type AnalyticsSink interface {
	RecordAdmission(ctx context.Context, identifier string, dec limiter.Decision) error
}

// DeniedSink publishes a notification for every denied admission check, for
// consumers (alerting, dashboards) that react to sustained denials. Also a
// side channel.
type DeniedSink interface {
	PublishDenied(ctx context.Context, identifier string, retryAfter time.Duration) error
}

// Sinks bundles the optional fire-and-forget side channels the admission
// middleware reports to. Either field may be nil.
type Sinks struct {
	Analytics AnalyticsSink
	Denied    DeniedSink
}

func (s Sinks) recordAdmission(ctx context.Context, log zerolog.Logger, identifier string, dec limiter.Decision) {
	if s.Analytics == nil {
		return
	}
	go func() {
		if err := s.Analytics.RecordAdmission(ctx, identifier, dec); err != nil {
			log.Debug().Err(err).Msg("analytics sink: record admission failed")
		}
	}()
}

func (s Sinks) publishDenied(ctx context.Context, log zerolog.Logger, identifier string, retryAfter time.Duration) {
	if s.Denied == nil {
		return
	}
	go func() {
		if err := s.Denied.PublishDenied(ctx, identifier, retryAfter); err != nil {
			log.Debug().Err(err).Msg("denied sink: publish failed")
		}
	}()
}

// RateLimit builds the admission middleware: resolve an identity and
// policy, consult the degradation policy if the store looks unavailable,
// call Allow, set headers, and either forward or reject.
//
// avail may be nil, in which case the store is always treated as ready
// (this is how tests wire a bare MemoryLimiter, which has no outage mode of
// its own to report). sinks may be the zero value, in which case no side
// channel is notified.
func RateLimit(rl limiter.RateLimiter, avail StoreAvailability, resolver *policy.Resolver, degrader policy.Degrader, sinks Sinks, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolver.Identity(r)
			lim := resolver.Limit(r)

			if id.Key == "" {
				writeJSONError(w, http.StatusInternalServerError, "empty identifier", 0)
				return
			}

			if avail != nil && !avail.Available(r.Context()) {
				switch degrader.Decide(policy.StateUnavailable) {
				case policy.OutcomeReject:
					writeJSONError(w, http.StatusServiceUnavailable, "rate limiter unavailable", 0)
					return
				default:
					next.ServeHTTP(w, r)
					return
				}
			}

			dec, err := rl.Allow(r.Context(), id, lim)
			if err != nil {
				var lerr *limiter.Error
				if errors.As(err, &lerr) && lerr.Kind == limiter.KindInvalidRequest {
					writeJSONError(w, http.StatusBadRequest, "invalid request", 0)
					return
				}
				if errors.As(err, &lerr) && lerr.Kind == limiter.KindPolicyMisconfig {
					writeJSONError(w, http.StatusInternalServerError, "rate limiter misconfigured", 0)
					return
				}

				log.Warn().Err(err).Str("identifier", id.Key).Msg("rate limiter store error")
				switch degrader.Decide(policy.StateError) {
				case policy.OutcomeReject:
					writeJSONError(w, http.StatusServiceUnavailable, "rate limiter unavailable", 0)
					return
				default:
					next.ServeHTTP(w, r)
					return
				}
			}

			setHeaders(w, lim.Burst, dec)
			sinks.recordAdmission(context.WithoutCancel(r.Context()), log, id.Key, dec)

			if !dec.Allow {
				retryAfter := dec.RetryAfter.Round(time.Second)
				sinks.publishDenied(context.WithoutCancel(r.Context()), log, id.Key, retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "Too Many Requests", int64(retryAfter.Seconds()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setHeaders sets the rate-limit header contract: limit/remaining are
// always set, Retry-After only on denial.
func setHeaders(w http.ResponseWriter, capacity int64, dec limiter.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(capacity, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
	if sec := int64(dec.RetryAfter.Round(time.Second).Seconds()); sec > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(sec, 10))
	}
}

// writeJSONError writes the fixed user-visible failure shape: an "error"
// string and, only for denial responses (status 429), a numeric
// "retryAfter" in seconds. No internal detail is ever echoed.
func writeJSONError(w http.ResponseWriter, status int, msg string, retryAfterSeconds int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusTooManyRequests {
		_ = json.NewEncoder(w).Encode(struct {
			Error      string `json:"error"`
			RetryAfter int64  `json:"retryAfter"`
		}{Error: msg, RetryAfter: retryAfterSeconds})
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}

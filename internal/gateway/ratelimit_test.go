package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/flarenet/backend/internal/ratelimit/policy"
	"github.com/flarenet/backend/pkg/limiter"
	"github.com/rs/zerolog"
)

// alwaysUnavailable is a StoreAvailability stub that reports the store as
// permanently down, exercising the degrader's unavailable path.
type alwaysUnavailable struct{}

func (alwaysUnavailable) Available(_ context.Context) bool { return false }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestHandler(t *testing.T, rl limiter.RateLimiter, avail StoreAvailability, degrader policy.Degrader) http.Handler {
	t.Helper()
	resolver := &policy.Resolver{Table: policy.DefaultPlanTable()}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Chain(inner, RateLimit(rl, avail, resolver, degrader, Sinks{}, testLogger()))
}

// S1: free plan, burst 10. First 10 requests succeed, 11th and 12th are denied.
func TestRateLimit_S1_FreePlanBurst(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	h := newTestHandler(t, l, nil, policy.Degrader{FailOpen: false})

	for i := 1; i <= 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "k1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		remaining, _ := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining"))
		if remaining != 10-i {
			t.Fatalf("request %d: expected remaining=%d, got %d", i, 10-i, remaining)
		}
		if w.Header().Get("Retry-After") != "" {
			t.Fatalf("request %d: unexpected Retry-After on an allowed request", i)
		}
	}

	for i := 11; i <= 12; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "k1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: expected 429, got %d", i, w.Code)
		}
		retryAfter, _ := strconv.Atoi(w.Header().Get("Retry-After"))
		if retryAfter < 9 {
			t.Fatalf("request %d: expected Retry-After >= 9, got %d", i, retryAfter)
		}
	}
}

// S2: refill after the bucket empties. The rate here is scaled up from the
// real free-plan rate (0.1 tokens/sec) so the test doesn't block for the
// real 10s refill period; the refill-after-wait property is rate-invariant.
func TestRateLimit_S2_RefillAfterWait(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	resolver := &policy.Resolver{Table: policy.Table{"free": {Capacity: 10, Rate: 20}}}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(inner, RateLimit(l, nil, resolver, policy.Degrader{FailOpen: false}, Sinks{}, testLogger()))

	for i := 1; i <= 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "s2")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("burst request %d: expected 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "s2")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatal("expected the bucket to be exhausted immediately after the burst")
	}

	time.Sleep(60 * time.Millisecond) // > 1/rate=50ms: exactly one token refills

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "s2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected the refilled token to admit the request, got %d", w.Code)
	}
	if remaining := w.Header().Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Fatalf("expected remaining=0 after consuming the one refilled token, got %q", remaining)
	}
	if w.Header().Get("Retry-After") != "" {
		t.Fatal("unexpected Retry-After on an allowed request")
	}
}

// S3: pro plan, capacity 30, rate 0.5/sec. 30 requests in quick succession
// all succeed; the 31st is denied with Retry-After=2 (1/rate).
func TestRateLimit_S3_ProPlanBurstAndRetryAfter(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	resolver := &policy.Resolver{
		Table:  policy.Table{"pro": {Capacity: 30, Rate: 0.5}},
		PlanOf: func(r *http.Request) string { return policy.PlanOfRequestOrUser(r, "") },
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(inner, RateLimit(l, nil, resolver, policy.Degrader{FailOpen: false}, Sinks{}, testLogger()))

	for i := 1; i <= 30; i++ {
		req := httptest.NewRequest(http.MethodGet, "/?plan=pro", nil)
		req.Header.Set("x-api-key", "s3")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/?plan=pro", nil)
	req.Header.Set("x-api-key", "s3")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("31st request: expected 429, got %d", w.Code)
	}
	if retryAfter := w.Header().Get("Retry-After"); retryAfter != "2" {
		t.Fatalf("expected Retry-After=2, got %q", retryAfter)
	}
}

// S4: isolation between two different identifiers on the free plan.
func TestRateLimit_S4_IdentifierIsolation(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	h := newTestHandler(t, l, nil, policy.Degrader{FailOpen: false})

	for i := 0; i < 10; i++ {
		reqA := httptest.NewRequest(http.MethodGet, "/", nil)
		reqA.Header.Set("x-api-key", "a")
		wA := httptest.NewRecorder()
		h.ServeHTTP(wA, reqA)
		if wA.Code != http.StatusOK {
			t.Fatalf("a: request %d unexpectedly denied", i)
		}

		reqB := httptest.NewRequest(http.MethodGet, "/", nil)
		reqB.Header.Set("x-api-key", "b")
		wB := httptest.NewRecorder()
		h.ServeHTTP(wB, reqB)
		if wB.Code != http.StatusOK {
			t.Fatalf("b: request %d unexpectedly denied", i)
		}
	}

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.Header.Set("x-api-key", "a")
	wA := httptest.NewRecorder()
	h.ServeHTTP(wA, reqA)
	if wA.Code != http.StatusTooManyRequests {
		t.Fatal("a's 11th request should be denied")
	}
}

// S5: IPv4-mapped IPv6 client address collides with the raw IPv4 bucket.
func TestRateLimit_S5_IPFallbackNormalization(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	h := newTestHandler(t, l, nil, policy.Degrader{FailOpen: false})

	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "::ffff:10.0.0.1:12345"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req1)
	remaining1, _ := strconv.Atoi(w1.Header().Get("X-RateLimit-Remaining"))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "10.0.0.1:54321"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)
	remaining2, _ := strconv.Atoi(w2.Header().Get("X-RateLimit-Remaining"))

	if remaining2 != remaining1-1 {
		t.Fatalf("expected the second request to draw from the same bucket: remaining1=%d remaining2=%d", remaining1, remaining2)
	}
}

// S6: store down, fail-closed.
func TestRateLimit_S6_StoreDownFailClosed(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	h := newTestHandler(t, l, alwaysUnavailable{}, policy.Degrader{FailOpen: false})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "k1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("no rate-limit headers should be set when rejecting due to store outage")
	}
	body := w.Body.String()
	if body == "" {
		t.Fatal("expected a JSON error body")
	}
}

func TestRateLimit_FailOpenPassesThroughOnOutage(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	h := newTestHandler(t, l, alwaysUnavailable{}, policy.Degrader{FailOpen: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "k1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through 200, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("no rate-limit headers should be set on a fail-open pass-through")
	}
}

type recordingAnalytics struct {
	calls []limiter.Decision
}

func (r *recordingAnalytics) RecordAdmission(_ context.Context, _ string, dec limiter.Decision) error {
	r.calls = append(r.calls, dec)
	return nil
}

type recordingDenied struct {
	published int
}

func (r *recordingDenied) PublishDenied(_ context.Context, _ string, _ time.Duration) error {
	r.published++
	return nil
}

func TestRateLimit_SinksNotifiedOnAllowAndDeny(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	resolver := &policy.Resolver{Table: policy.Table{"free": {Capacity: 1, Rate: 0.1}}}
	analytics := &recordingAnalytics{}
	denied := &recordingDenied{}
	sinks := Sinks{Analytics: analytics, Denied: denied}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(inner, RateLimit(l, nil, resolver, policy.Degrader{}, sinks, testLogger()))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "sink-test")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}

	waitFor(t, func() bool { return len(analytics.calls) == 2 })
	waitFor(t, func() bool { return denied.published == 1 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRateLimit_EmptyIdentifierIs500(t *testing.T) {
	l := limiter.NewMemoryLimiter()
	resolver := &policy.Resolver{Table: policy.DefaultPlanTable()}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(inner, RateLimit(l, nil, resolver, policy.Degrader{}, Sinks{}, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "" // no port, no host -> normalized identifier is empty
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for empty identifier, got %d", w.Code)
	}
}

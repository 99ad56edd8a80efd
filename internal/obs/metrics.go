package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus surface for the admission gate. It registers a
// small, fixed set of series so /metrics stays cheap to scrape regardless
// of tenant cardinality.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
	LimiterErrors   *prometheus.CounterVec
	LimiterLatency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flarenet_requests_total",
				Help: "Total HTTP requests processed by the admission gate",
			},
			[]string{"method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flarenet_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flarenet_rate_limited_total",
				Help: "Total requests rejected due to rate limiting",
			},
			[]string{"namespace"},
		),
		LimiterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flarenet_limiter_errors_total",
				Help: "Total rate limiter store errors",
			},
			[]string{"namespace"},
		),
		LimiterLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flarenet_limiter_latency_seconds",
				Help:    "Latency of the shared-store round trip inside Allow",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RateLimited, m.LimiterErrors, m.LimiterLatency)
	return m
}

// LimiterRecorder adapts Metrics to limiter.MetricsRecorder so it can be
// passed to limiter.WithRecorder.
type LimiterRecorder struct {
	m *Metrics
}

func NewLimiterRecorder(m *Metrics) *LimiterRecorder {
	return &LimiterRecorder{m: m}
}

func (r *LimiterRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case "ratelimit.denied":
		r.m.RateLimited.WithLabelValues(tags["namespace"]).Add(value)
	case "ratelimit.error":
		r.m.LimiterErrors.WithLabelValues(tags["namespace"]).Add(value)
	case "ratelimit.call":
		// counted implicitly via RequestsTotal at the HTTP layer; nothing
		// further to record here.
	}
}

func (r *LimiterRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == "ratelimit.latency" {
		r.m.LimiterLatency.WithLabelValues(tags["namespace"]).Observe(value)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records per-request count and duration metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		code := rec.status
		if code == 0 {
			code = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(code)).Inc()
	})
}

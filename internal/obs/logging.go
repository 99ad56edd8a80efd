// Package obs wires the ambient logging and metrics stack shared by every
// FlareNet service: zerolog for structured logs, Prometheus for metrics.
package obs

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// SetupLogger builds a zerolog.Logger at the given level ("debug", "info",
// "warn", "error"), falling back to info on an unrecognized level.
func SetupLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// RequestLogger logs one line per request with method, path, status, and
// duration, tagging each with a generated request ID that is also returned
// in the X-Request-ID response header. An incoming X-Request-ID header is
// not read.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(logger)(
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", status).
					Int("size", size).
					Dur("dur", duration).
					Msg("req")
			})(hlog.RequestIDHandler("req_id", "X-Request-ID")(next)),
		)
	}
}

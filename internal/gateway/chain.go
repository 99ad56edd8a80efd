// Package gateway provides HTTP middleware for the admission-gated request
// pipeline: body limits, rate limiting, and the small middleware-chaining
// helper they're composed with.
package gateway

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h in order, so the first middleware listed is the
// outermost — it runs first on the way in and last on the way out.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

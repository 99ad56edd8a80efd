package policy

// StoreState is the shared store's observed state for a given admission
// check, from the caller's point of view. Decide is only meaningful for
// the degraded states; a StateReady check never reaches the degrader —
// the middleware calls Allow directly in that case.
type StoreState int

const (
	// StateUnavailable: connection lost, last ping failed, or latched after
	// exhausted reconnect attempts.
	StateUnavailable StoreState = iota
	// StateError: a single operation threw (after its inline retry).
	StateError
)

// Outcome tells the admission middleware what to do instead of calling
// Allow (or after Allow itself failed).
type Outcome int

const (
	// OutcomePassThrough: forward the request without setting rate-limit
	// headers, as if no limiter were configured.
	OutcomePassThrough Outcome = iota
	// OutcomeReject: answer with 503 and do not forward.
	OutcomeReject
)

// Degrader implements the fail-open/fail-closed table: production traffic
// behind expensive downstream calls sets FailOpen=false so a store outage
// never silently removes the rate ceiling; test and development
// environments set FailOpen=true.
type Degrader struct {
	FailOpen bool
}

// Decide returns what the middleware should do for the given degraded store
// state. Both StateUnavailable and StateError resolve the same way: the
// spec's table treats "connection down" and "one operation errored" as
// identical for the purposes of fail-open/fail-closed.
func (d Degrader) Decide(_ StoreState) Outcome {
	if d.FailOpen {
		return OutcomePassThrough
	}
	return OutcomeReject
}

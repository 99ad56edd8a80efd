// Package policy resolves an admission identifier and a rate-limit policy
// for an incoming HTTP request, and decides how the admission middleware
// should degrade when the shared store is unavailable.
package policy

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flarenet/backend/pkg/limiter"
)

// PlanLimit is one row of the plan-to-limit table.
type PlanLimit struct {
	Capacity int64
	Rate     float64 // tokens per second
}

// Table maps a plan name to its PlanLimit. It is injected so deployments can
// override the defaults below without touching code.
type Table map[string]PlanLimit

// DefaultPlanTable is the standard plan-to-limit table.
// Unknown or missing plan names fall back to the "free" row.
func DefaultPlanTable() Table {
	return Table{
		"free":       {Capacity: 10, Rate: 0.1},
		"pro":        {Capacity: 30, Rate: 0.5},
		"enterprise": {Capacity: 60, Rate: 1.0},
	}
}

// Resolver turns a *http.Request into a limiter.Identity and limiter.Limit.
type Resolver struct {
	// Table is the plan-to-limit table. DefaultPlanTable() if nil.
	Table Table
	// PlanOf returns the plan name for a request (from its body, query
	// string, or an authenticated user record attached upstream). The core
	// does not define how the plan is authenticated; it consumes whatever
	// the surrounding code attaches via this func.
	PlanOf func(r *http.Request) string
	// Default is the policy applied when neither the resolved plan nor a
	// "free" row exists in Table — the last-resort fallback for a plan
	// table that doesn't define its own catch-all tier. The zero value
	// (capacity 0, rate 0) is a misconfigured policy and will be rejected
	// by the RateLimiter, so callers with a custom Table should set this.
	Default PlanLimit
}

const apiKeyHeader = "x-api-key"

// Identity implements the identifier-selection rule: prefer the literal
// x-api-key header value; otherwise fall back to the request's client
// address, with an IPv4-mapped-IPv6 prefix stripped and lowercased.
func (res *Resolver) Identity(r *http.Request) limiter.Identity {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return limiter.Identity{Namespace: "api_key", Key: key}
	}
	return limiter.Identity{Namespace: "ip", Key: normalizeAddr(r.RemoteAddr)}
}

const v4MappedPrefix = "::ffff:"

// normalizeAddr strips a port (if any) and an IPv4-mapped-IPv6 prefix, and
// lowercases the result, so "::ffff:10.0.0.1" and "10.0.0.1:54321" collide
// on the same bucket as a plain "10.0.0.1".
func normalizeAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// An unbracketed IPv4-mapped address like "::ffff:10.0.0.1:12345"
		// has too many colons for SplitHostPort to parse. Strip the mapped
		// prefix first so the rest looks like a plain "host:port" pair.
		lower := strings.ToLower(addr)
		if strings.HasPrefix(lower, v4MappedPrefix) {
			rest := addr[len(v4MappedPrefix):]
			if h, _, err := net.SplitHostPort(rest); err == nil {
				host = h
			} else {
				host = rest
			}
		} else {
			host = addr
		}
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, v4MappedPrefix)
	return host
}

// Limit resolves the (capacity, rate) pair for a request, consulting PlanOf
// if set and falling back to the "free" row, then to Default, for a plan
// that isn't in the table.
func (res *Resolver) Limit(r *http.Request) limiter.Limit {
	table := res.Table
	if table == nil {
		table = DefaultPlanTable()
	}

	plan := ""
	if res.PlanOf != nil {
		plan = res.PlanOf(r)
	}

	row, ok := table[plan]
	if !ok {
		row, ok = table["free"]
	}
	if !ok {
		row = res.Default
	}

	return limiter.Limit{
		Rate:   row.Rate,
		Period: time.Second,
		Burst:  row.Capacity,
	}
}

// PlanOfRequestOrUser reads "plan" from the request's form (body or query)
// first, falling back to userPlan — the plan attached to an authenticated
// user record by surrounding code, if any.
func PlanOfRequestOrUser(r *http.Request, userPlan string) string {
	if p := r.FormValue("plan"); p != "" {
		return p
	}
	return userPlan
}

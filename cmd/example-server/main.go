// Command example-server is a dependency-free local-dev stand-in for
// cmd/server: it wires the same admission middleware and header contract
// but against MemoryLimiter instead of Redis, so it needs no shared store
// to boot.
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/flarenet/backend/internal/gateway"
	"github.com/flarenet/backend/internal/ratelimit/policy"
	"github.com/flarenet/backend/pkg/limiter"
	"github.com/rs/zerolog"
)

func main() {
	l := limiter.NewMemoryLimiter()
	logger := zerolog.New(zerolog.NewConsoleWriter())

	resolver := &policy.Resolver{Table: policy.DefaultPlanTable()}
	degrader := policy.Degrader{FailOpen: true}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Pong!\n"))
	})

	handler := gateway.Chain(mux, gateway.RateLimit(l, nil, resolver, degrader, gateway.Sinks{}, logger))

	log.Printf("example-server listening on :8080 (in-memory limiter, no Redis needed)")
	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

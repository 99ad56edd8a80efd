// Command server runs the FlareNet admission gate: an HTTP frontend that
// rate-limits requests to expensive downstream collaborators (an LLM
// provider, a code-hosting API) using the distributed token-bucket limiter
// in pkg/limiter.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flarenet/backend/internal/analytics"
	"github.com/flarenet/backend/internal/codehost"
	"github.com/flarenet/backend/internal/config"
	"github.com/flarenet/backend/internal/events"
	"github.com/flarenet/backend/internal/gateway"
	"github.com/flarenet/backend/internal/llmgateway"
	"github.com/flarenet/backend/internal/obs"
	"github.com/flarenet/backend/internal/ratelimit/policy"
	sqlstore "github.com/flarenet/backend/internal/store/sql"
	"github.com/flarenet/backend/pkg/limiter"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Msg("starting flarenet admission gate")

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Store.Addr})
	rl, err := limiter.NewRedisLimiter(redisClient,
		limiter.WithPrefix(cfg.Store.KeyPrefix),
		limiter.WithTimeout(cfg.Store.OpTimeout()),
		limiter.WithTTL(cfg.Store.KeyTTL()),
		limiter.WithRecorder(obs.NewLimiterRecorder(metrics)),
		limiter.WithMaxReconnectAttempts(cfg.Store.MaxReconnectAttempt),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize rate limiter")
	}

	planTable := policy.Table{}
	for name, row := range cfg.RateLimiting.Plans {
		planTable[name] = policy.PlanLimit{Capacity: row.Capacity, Rate: row.Rate}
	}

	var userPlanStore *sqlstore.PlanStore
	if cfg.Collaborators.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		userPlanStore, err = sqlstore.NewPlanStore(ctx, cfg.Collaborators.PostgresDSN)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("plan store unavailable, falling back to request-supplied plan only")
		}
	}

	resolver := &policy.Resolver{
		Table: planTable,
		PlanOf: func(r *http.Request) string {
			userPlan := ""
			if userPlanStore != nil {
				if userID := r.FormValue("userId"); userID != "" {
					if p, err := userPlanStore.GetPlan(r.Context(), userID); err == nil {
						userPlan = p
					}
				}
			}
			return policy.PlanOfRequestOrUser(r, userPlan)
		},
		Default: policy.PlanLimit{
			Capacity: cfg.RateLimiting.DefaultCapacity,
			Rate:     cfg.RateLimiting.DefaultRate,
		},
	}

	degrader := policy.Degrader{FailOpen: cfg.RateLimiting.FailOpen}

	var sinks gateway.Sinks
	var admissionLog *analytics.AdmissionLogger
	if cfg.Collaborators.ClickhouseDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admissionLog, err = analytics.NewAdmissionLogger(ctx, cfg.Collaborators.ClickhouseDSN, "flarenet", "", "")
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("analytics sink unavailable, admission decisions will not be recorded")
		} else {
			sinks.Analytics = admissionLog
		}
	}
	var deniedPublisher *events.Publisher
	if cfg.Collaborators.NatsURL != "" {
		deniedPublisher, err = events.NewPublisher(cfg.Collaborators.NatsURL)
		if err != nil {
			logger.Warn().Err(err).Msg("denied-event sink unavailable, denials will not be published")
		} else {
			sinks.Denied = deniedPublisher
		}
	}

	rateLimitMW := gateway.RateLimit(rl, rl, resolver, degrader, sinks, logger)

	llmClient := llmgateway.NewClient(cfg.Collaborators.LLMBaseURL, cfg.Collaborators.LLMAPIKey)
	repoReader := codehost.NewRepoReader(cfg.Collaborators.GitHubToken)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		resp, err := llmClient.Complete(r.Context(), llmgateway.CompletionRequest{Model: r.FormValue("model")})
		if err != nil {
			http.Error(w, "completion failed", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp.Content)
	})

	mux.HandleFunc("/v1/repos/", func(w http.ResponseWriter, r *http.Request) {
		owner, repo := r.FormValue("owner"), r.FormValue("repo")
		branch, err := repoReader.GetDefaultBranch(r.Context(), owner, repo)
		if err != nil {
			http.Error(w, "lookup failed", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(branch))
	})

	handler := gateway.Chain(
		mux,
		obs.RequestLogger(logger),
		metrics.Middleware,
		gateway.BodyLimit(int(cfg.Server.MaxBody())),
		rateLimitMW,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	if userPlanStore != nil {
		userPlanStore.Close()
	}
	if admissionLog != nil {
		_ = admissionLog.Close()
	}
	if deniedPublisher != nil {
		deniedPublisher.Close()
	}
	logger.Info().Msg("bye")
}

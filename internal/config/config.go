// Package config loads the YAML configuration recognized by the admission
// gate. Nothing here parses the environment directly — the core consumes
// whatever this package hands it, injected.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`
	PrometheusPath string `yaml:"prometheus_path"`
}

// Store configures the shared KV store client.
type Store struct {
	Addr                string `yaml:"addr"`
	KeyPrefix           string `yaml:"key_prefix"`
	KeyTTLSeconds       int    `yaml:"key_ttl_seconds"`
	ConnectTimeoutMS    int    `yaml:"store_connect_timeout_ms"`
	OpTimeoutMS         int    `yaml:"store_op_timeout_ms"`
	MaxReconnectAttempt int    `yaml:"max_reconnect_attempts"`
}

func (s Store) ConnectTimeout() time.Duration {
	if s.ConnectTimeoutMS == 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}

func (s Store) OpTimeout() time.Duration {
	if s.OpTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.OpTimeoutMS) * time.Millisecond
}

func (s Store) KeyTTL() time.Duration {
	if s.KeyTTLSeconds == 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.KeyTTLSeconds) * time.Second
}

// PlanLimit is one row of the plan-to-limit table.
type PlanLimit struct {
	Capacity int64   `yaml:"capacity"`
	Rate     float64 `yaml:"rate"`
}

// RateLimiting is the admission-gate specific configuration.
type RateLimiting struct {
	FailOpen         bool                 `yaml:"fail_open"`
	DefaultCapacity  int64                `yaml:"default_capacity"`
	DefaultRate      float64              `yaml:"default_rate"`
	Plans            map[string]PlanLimit `yaml:"plans"`
}

// Collaborators holds connection info for the platform's out-of-scope
// collaborators: SQL store, analytics column store, pub/sub broker,
// LLM provider, code-hosting API. The admission core never reaches into
// these fields itself; cmd/server wires them.
type Collaborators struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	NatsURL       string `yaml:"nats_url"`
	LLMBaseURL    string `yaml:"llm_base_url"`
	LLMAPIKey     string `yaml:"llm_api_key"`
	GitHubToken   string `yaml:"github_token"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Store         Store         `yaml:"store"`
	RateLimiting  RateLimiting  `yaml:"rate_limiting"`
	Collaborators Collaborators `yaml:"collaborators"`
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "ratelimit:"
	}
	if cfg.RateLimiting.DefaultCapacity <= 0 {
		cfg.RateLimiting.DefaultCapacity = 10
	}
	if cfg.RateLimiting.DefaultRate <= 0 {
		cfg.RateLimiting.DefaultRate = 0.1
	}
	if cfg.RateLimiting.Plans == nil {
		cfg.RateLimiting.Plans = map[string]PlanLimit{
			"free":       {Capacity: 10, Rate: 0.1},
			"pro":        {Capacity: 30, Rate: 0.5},
			"enterprise": {Capacity: 60, Rate: 1.0},
		}
	}

	return &cfg, nil
}

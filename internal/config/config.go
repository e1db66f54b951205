// Package config provides hierarchical configuration loading for Vanguard.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain/budget"
)

// Config holds all runtime configuration for the Vanguard core service.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Trigger   Trigger   `yaml:"trigger"`
	Mission   Mission   `yaml:"mission"`
	Budget    Budget    `yaml:"budget"`
	Notify    Notify    `yaml:"notify"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for external collaborators.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds in-process L1 cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Heartbeat holds the maintenance cycle's advisory time budgets. Budgets
// are wall-clock accounting only; a started sub-operation is never
// preempted.
type Heartbeat struct {
	TriggerBudget    time.Duration `yaml:"trigger_budget"`
	ReactionBudget   time.Duration `yaml:"reaction_budget"`
	InsightBudget    time.Duration `yaml:"insight_budget"`
	OutcomeBudget    time.Duration `yaml:"outcome_budget"`
	StaleStepBudget  time.Duration `yaml:"stale_step_budget"`
	RoundtableBudget time.Duration `yaml:"roundtable_budget"`
}

// TotalBudget returns the whole cycle's wall-clock budget.
func (h Heartbeat) TotalBudget() time.Duration {
	return h.TriggerBudget + h.ReactionBudget + h.InsightBudget +
		h.OutcomeBudget + h.StaleStepBudget + h.RoundtableBudget
}

// Trigger holds trigger evaluator configuration.
type Trigger struct {
	// Timezone is the fixed named timezone in which time_based
	// schedules are evaluated.
	Timezone    string        `yaml:"timezone"`
	EventWindow time.Duration `yaml:"event_window"`
}

// Mission holds mission runner configuration.
type Mission struct {
	MaxRetries           int               `yaml:"max_retries"`
	RetryDelayMs         int               `yaml:"retry_delay_ms"`
	SubmitTimeout        time.Duration     `yaml:"submit_timeout"`
	FallbackGenerals     map[string]string `yaml:"fallback_generals"`
	StaleStepAfter       time.Duration     `yaml:"stale_step_after"`
	MaxStepRecoveries    int               `yaml:"max_step_recoveries"`
	StaleRoundtableAfter time.Duration     `yaml:"stale_roundtable_after"`
}

// Budget holds the bootstrap cost thresholds. The persisted thresholds in
// the store take precedence once saved; these seed a fresh deployment.
type Budget struct {
	Thresholds budget.Thresholds `yaml:"thresholds"`
}

// Notify holds notification delivery configuration.
type Notify struct {
	Providers     []string          `yaml:"providers"` // e.g. ["slack"]
	SlackWebhook  string            `yaml:"slack_webhook"`
	EnabledEvents []string          `yaml:"enabled_events"`
	Options       map[string]string `yaml:"options"`
}

// Package run defines the Run domain entity: the audit record of a single
// maintenance cycle execution.
package run

import "time"

// Type identifies what kind of cycle produced a run.
type Type string

const (
	TypeHeartbeat         Type = "heartbeat"
	TypeTriggerEvaluation Type = "trigger_evaluation"
	TypeMemoryMaintenance Type = "memory_maintenance"
	TypeCostCheck         Type = "cost_check"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// IsTerminal returns true if the run has reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Run is one audit record of a heartbeat cycle. It is created as running
// when the cycle starts, mutated exactly once to a terminal status, and
// immutable thereafter.
type Run struct {
	ID           string         `json:"id"`
	RunType      Type           `json:"run_type"`
	AgentID      string         `json:"agent_id,omitempty"` // empty = system-wide
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	ActionsTaken int            `json:"actions_taken"`
	TokensUsed   int64          `json:"tokens_used"`
	CostUSD      float64        `json:"cost_usd"`
	Status       Status         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Usage is the resource consumption reported by one sub-operation.
type Usage struct {
	Actions int     `json:"actions"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Add accumulates another usage into u.
func (u *Usage) Add(other Usage) {
	u.Actions += other.Actions
	u.Tokens += other.Tokens
	u.CostUSD += other.CostUSD
}

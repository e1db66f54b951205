// Package budget defines the cost-tracking domain: per-agent daily spend
// records, tiered alert levels, and the operation-blocking policy types.
package budget

import "time"

// AlertLevel is the tiered classification of an agent's daily spend.
type AlertLevel string

const (
	AlertNormal    AlertLevel = "normal"
	AlertWarning   AlertLevel = "warning"
	AlertSlowdown  AlertLevel = "slowdown"
	AlertEmergency AlertLevel = "emergency"
)

// OperationType classifies an operation for the blocking policy.
type OperationType string

const (
	OpProposal     OperationType = "proposal"
	OpConversation OperationType = "conversation"
	OpTrigger      OperationType = "trigger"
)

// Priority ranks an operation for the blocking policy.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CostRecord accumulates one agent's spend for one calendar day.
// Cost and tokens are additive and never decrease within a day except by
// explicit admin reset.
type CostRecord struct {
	AgentID         string         `json:"agent_id"`
	Date            string         `json:"date"` // YYYY-MM-DD in the ledger timezone
	TokensUsed      int64          `json:"tokens_used"`
	CostUSD         float64        `json:"cost_usd"`
	AlertLevel      AlertLevel     `json:"alert_level"`
	AlertSentAt     *time.Time     `json:"alert_sent_at,omitempty"`
	OperationCounts map[string]int `json:"operation_counts,omitempty"`
}

// SlowdownEffects is the throttling policy applied while an agent is in
// slowdown or emergency.
type SlowdownEffects struct {
	ConversationFrequencyMultiplier float64 `json:"conversation_frequency_multiplier" yaml:"conversation_frequency_multiplier"`
	SkipLowPriorityTriggers         bool    `json:"skip_low_priority_triggers" yaml:"skip_low_priority_triggers"`
	RequireApprovalForAll           bool    `json:"require_approval_for_all" yaml:"require_approval_for_all"`
}

// Thresholds are the per-agent per-day spending tiers, ascending.
// Process-wide and hot-reloadable.
type Thresholds struct {
	WarningUSD   float64         `json:"warning_usd" yaml:"warning_usd"`
	SlowdownUSD  float64         `json:"slowdown_usd" yaml:"slowdown_usd"`
	EmergencyUSD float64         `json:"emergency_usd" yaml:"emergency_usd"`
	Effects      SlowdownEffects `json:"slowdown_effects" yaml:"slowdown_effects"`
}

// DefaultThresholds returns the stock $5/$10/$15 tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningUSD:   5,
		SlowdownUSD:  10,
		EmergencyUSD: 15,
		Effects: SlowdownEffects{
			ConversationFrequencyMultiplier: 0.5,
			SkipLowPriorityTriggers:         true,
			RequireApprovalForAll:           true,
		},
	}
}

// Validate checks that the tiers are positive and strictly ascending.
func (t Thresholds) Validate() error {
	if t.WarningUSD <= 0 || t.SlowdownUSD <= t.WarningUSD || t.EmergencyUSD <= t.SlowdownUSD {
		return ErrInvalidThresholds
	}
	return nil
}

// DetermineAlertLevel maps a daily cost to its alert tier. It is a pure,
// monotone step function: the highest threshold met wins.
func DetermineAlertLevel(costUSD float64, t Thresholds) AlertLevel {
	switch {
	case costUSD >= t.EmergencyUSD:
		return AlertEmergency
	case costUSD >= t.SlowdownUSD:
		return AlertSlowdown
	case costUSD >= t.WarningUSD:
		return AlertWarning
	default:
		return AlertNormal
	}
}

// DailySummary is the per-agent view of one day's spend with a naive
// linear projection to a full-day estimate.
type DailySummary struct {
	AgentID          string         `json:"agent_id"`
	Date             string         `json:"date"`
	TokensUsed       int64          `json:"tokens_used"`
	CostUSD          float64        `json:"cost_usd"`
	AlertLevel       AlertLevel     `json:"alert_level"`
	ProjectedCostUSD float64        `json:"projected_cost_usd"`
	OperationCounts  map[string]int `json:"operation_counts,omitempty"`
}

// Trend is the coarse direction of system spend over a window.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// AgentShare is one agent's slice of the system-wide spend.
type AgentShare struct {
	AgentID string  `json:"agent_id"`
	CostUSD float64 `json:"cost_usd"`
	Percent float64 `json:"percent"`
}

// SystemStats aggregates spend across all agents over a trailing window.
type SystemStats struct {
	Days         int          `json:"days"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	AvgDailyUSD  float64      `json:"avg_daily_usd"`
	PerAgent     []AgentShare `json:"per_agent"`
	Trend        Trend        `json:"trend"`
}

// Package trigger defines trigger rules: named condition + action pairs
// evaluated on every heartbeat cycle.
package trigger

import (
	"encoding/json"
	"time"
)

// Type classifies how a rule's condition is evaluated.
type Type string

const (
	TypeTimeBased      Type = "time_based"
	TypeEventBased     Type = "event_based"
	TypeConditionBased Type = "condition_based"
)

// ActionType identifies what a rule does when it fires. Unknown action
// types are logged and skipped by the evaluator, never fatal.
type ActionType string

const (
	ActionCreateProposal     ActionType = "create_proposal"
	ActionInitiateRoundtable ActionType = "initiate_roundtable"
	ActionSendNotification   ActionType = "send_notification"
)

// Rule is a persisted trigger rule. The core only ever reads rules and
// updates LastFiredAt/FireCount on fire; creation and editing happen
// externally.
type Rule struct {
	ID              string          `json:"id"`
	AgentID         string          `json:"agent_id"`
	Name            string          `json:"name"`
	TriggerType     Type            `json:"trigger_type"`
	Conditions      json.RawMessage `json:"conditions"`
	ActionConfig    ActionConfig    `json:"action_config"`
	CooldownMinutes int             `json:"cooldown_minutes"`
	MaxFiresPerDay  int             `json:"max_fires_per_day"`
	LastFiredAt     *time.Time      `json:"last_fired_at,omitempty"`
	FireCount       int             `json:"fire_count"`
	IsActive        bool            `json:"is_active"`
}

// ActionConfig describes the action executed when a rule fires.
type ActionConfig struct {
	Type   ActionType     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// InCooldown reports whether the rule fired within its cooldown window,
// and how much of the window remains.
func (r *Rule) InCooldown(now time.Time) (bool, time.Duration) {
	if r.LastFiredAt == nil || r.CooldownMinutes <= 0 {
		return false, 0
	}
	cooldown := time.Duration(r.CooldownMinutes) * time.Minute
	elapsed := now.Sub(*r.LastFiredAt)
	if elapsed < cooldown {
		return true, cooldown - elapsed
	}
	return false, 0
}

// Evaluation records the outcome of evaluating one rule.
type Evaluation struct {
	RuleID string `json:"rule_id"`
	Name   string `json:"name"`
	Fired  bool   `json:"fired"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TimeConditions is the condition payload for time_based rules.
type TimeConditions struct {
	Schedule string `json:"schedule"` // 5-field cron: minute hour dayOfMonth month dayOfWeek
}

// EventConditions is the condition payload for event_based rules.
type EventConditions struct {
	EventType string         `json:"event_type"`
	Match     map[string]any `json:"match,omitempty"` // payload containment filter
}

// ConditionParams is the condition payload for condition_based rules.
// Keys name registered predicates; unknown keys evaluate to not-met.
type ConditionParams struct {
	Kind          string  `json:"kind"` // e.g. "cost_spike", "error_pattern"
	WindowMinutes int     `json:"window_minutes,omitempty"`
	Multiplier    float64 `json:"multiplier,omitempty"`
	Threshold     int     `json:"threshold,omitempty"`
}

// Package event defines the AgentEvent domain entity: the append-only
// audit log that feeds event_based triggers and observability.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of agent event.
type Type string

const (
	TypeTriggerFired     Type = "trigger.fired"
	TypeTriggerError     Type = "trigger.error"
	TypeBudgetAlert      Type = "budget.alert"
	TypeHeartbeatStarted Type = "heartbeat.started"
	TypeHeartbeatDone    Type = "heartbeat.done"
	TypeMissionStarted   Type = "mission.started"
	TypeMissionDone      Type = "mission.done"
	TypeStepDone         Type = "mission.step_done"
	TypeReactionQueued   Type = "reaction.queued"
	TypeError            Type = "error"
)

// AgentEvent is a single immutable entry in the platform's event log.
type AgentEvent struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id,omitempty"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PayloadContains reports whether the event payload, decoded as a JSON
// object, contains every key/value pair of filter (shallow containment).
// Events with non-object payloads match only an empty filter.
func (e *AgentEvent) PayloadContains(filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(e.Payload, &doc); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Package memory defines agent memory records and the inter-agent
// reaction queue. Only the scheduling-relevant contract is modeled here:
// records participate in promotion and lookup, not in text reasoning.
package memory

import (
	"encoding/json"
	"time"
)

// Tier is the promotion level of a memory record.
type Tier string

const (
	TierWorking   Tier = "working"
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
)

// Record is one persisted agent memory.
type Record struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	Tier           Tier      `json:"tier"`
	Kind           string    `json:"kind"` // e.g. "observation", "insight"
	Content        string    `json:"content"`
	AccessCount    int       `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// ReactionStatus is the lifecycle state of a queued reaction.
type ReactionStatus string

const (
	ReactionPending   ReactionStatus = "pending"
	ReactionProcessed ReactionStatus = "processed"
	ReactionFailed    ReactionStatus = "failed"
)

// Reaction is one entry in the inter-agent reaction queue: an agent's
// deferred response to another agent's event, drained by the heartbeat.
type Reaction struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	SourceID   string          `json:"source_id"` // event that provoked the reaction
	ActionType string          `json:"action_type"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     ReactionStatus  `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

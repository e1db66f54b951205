// Package roundtable defines the multi-agent discussion entity. The core
// only opens roundtables (trigger action) and expires stalled ones; the
// discussion mechanics live with the external executor.
package roundtable

import "time"

// Status is the lifecycle state of a roundtable.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Roundtable is a persisted multi-agent discussion.
type Roundtable struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	Status       Status    `json:"status"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

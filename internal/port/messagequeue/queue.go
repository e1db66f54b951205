// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"time"
)

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing, subscribing, and
// request/reply messaging.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Request sends a message and waits for a single reply.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the NATS subjects used by Vanguard.
const (
	SubjectEvents         = "events.audit"           // audit event fan-out
	SubjectProposals      = "actions.proposal"       // create_proposal trigger actions
	SubjectRoundtables    = "actions.roundtable"     // initiate_roundtable trigger actions
	SubjectGeneralExecute = "generals.%s.execute"    // request/reply to the spawn host, per role
	SubjectStepProgress   = "missions.step.progress" // step status reports
	SubjectMissionDone    = "missions.done"          // mission completion reports
)

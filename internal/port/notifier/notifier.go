// Package notifier defines the notification port (interface) and its
// self-registration registry.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier. Delivery is
// fire-and-forget: a failed send never aborts the triggering operation.
type Notification struct {
	AgentID string `json:"agent_id,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "warning", "slowdown", "emergency"
	Source  string `json:"source"` // e.g. "budget.alert", "trigger.fired"
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}

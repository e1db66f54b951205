package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/port/database"
	"github.com/vanguard-ai/vanguard/internal/port/messagequeue"
)

// AuditStore decorates a Store so every appended audit event is also
// published to the message queue, letting external consumers tail the
// stream without polling Postgres. Publication is best-effort: the
// persisted row is the source of truth.
type AuditStore struct {
	database.Store
	queue messagequeue.Queue
}

// WithAuditFanout wraps store with queue fan-out of appended events.
func WithAuditFanout(store database.Store, queue messagequeue.Queue) *AuditStore {
	return &AuditStore{Store: store, queue: queue}
}

// AppendEvent persists the event, then publishes it.
func (s *AuditStore) AppendEvent(ctx context.Context, ev *event.AgentEvent) error {
	if err := s.Store.AppendEvent(ctx, ev); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("audit event marshal failed", "type", ev.Type, "error", err)
		return nil
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectEvents, data); err != nil {
		slog.Warn("audit event publish failed", "type", ev.Type, "error", err)
	}
	return nil
}

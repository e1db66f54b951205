package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vanguard-ai/vanguard/internal/domain/roundtable"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
	"github.com/vanguard-ai/vanguard/internal/port/database"
	"github.com/vanguard-ai/vanguard/internal/port/messagequeue"
	"github.com/vanguard-ai/vanguard/internal/port/notifier"
)

// actionEstimates are the static per-action resource estimates recorded when
// an action is dispatched. Actual downstream consumption is reported by the
// executing collaborator through its own usage tracking; these cover the
// dispatch itself.
var actionEstimates = map[trigger.ActionType]run.Usage{
	trigger.ActionCreateProposal:     {Actions: 1, Tokens: 1200, CostUSD: 0.04},
	trigger.ActionInitiateRoundtable: {Actions: 1, Tokens: 2500, CostUSD: 0.08},
	trigger.ActionSendNotification:   {Actions: 1, Tokens: 300, CostUSD: 0.01},
}

// EstimateAction returns the static usage estimate for an action type.
// Unknown types estimate to a single zero-cost action.
func EstimateAction(t trigger.ActionType) run.Usage {
	if u, ok := actionEstimates[t]; ok {
		return u
	}
	return run.Usage{Actions: 1}
}

// ActionDispatcher executes trigger and reaction actions: publishing
// proposal requests, opening roundtables, and sending notifications.
type ActionDispatcher struct {
	store  database.Store
	queue  messagequeue.Queue
	notify *NotificationService
	now    func() time.Time
}

// NewActionDispatcher creates an ActionDispatcher.
func NewActionDispatcher(store database.Store, queue messagequeue.Queue, notify *NotificationService) *ActionDispatcher {
	return &ActionDispatcher{
		store:  store,
		queue:  queue,
		notify: notify,
		now:    time.Now,
	}
}

// Dispatch executes one action. Unknown action types are logged and skipped;
// they never fail the caller.
func (d *ActionDispatcher) Dispatch(ctx context.Context, agentID string, cfg trigger.ActionConfig) error {
	switch cfg.Type {
	case trigger.ActionCreateProposal:
		return d.publishProposal(ctx, agentID, cfg.Params)
	case trigger.ActionInitiateRoundtable:
		return d.openRoundtable(ctx, agentID, cfg.Params)
	case trigger.ActionSendNotification:
		d.sendNotification(ctx, agentID, cfg.Params)
		return nil
	default:
		slog.Warn("unknown action type, skipping", "action", cfg.Type, "agent", agentID)
		return nil
	}
}

func (d *ActionDispatcher) publishProposal(ctx context.Context, agentID string, params map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"agent_id": agentID,
		"params":   params,
	})
	if err != nil {
		return fmt.Errorf("marshal proposal payload: %w", err)
	}
	if err := d.queue.Publish(ctx, messagequeue.SubjectProposals, payload); err != nil {
		return fmt.Errorf("publish proposal: %w", err)
	}
	return nil
}

func (d *ActionDispatcher) openRoundtable(ctx context.Context, agentID string, params map[string]any) error {
	topic, _ := params["topic"].(string)
	if topic == "" {
		topic = "agent-initiated discussion"
	}

	now := d.now()
	rt := &roundtable.Roundtable{
		ID:           uuid.NewString(),
		Topic:        topic,
		Status:       roundtable.StatusActive,
		Participants: []string{agentID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.store.CreateRoundtable(ctx, rt); err != nil {
		return fmt.Errorf("create roundtable: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"roundtable_id": rt.ID,
		"topic":         rt.Topic,
		"initiator":     agentID,
		"params":        params,
	})
	if err != nil {
		return fmt.Errorf("marshal roundtable payload: %w", err)
	}
	if err := d.queue.Publish(ctx, messagequeue.SubjectRoundtables, payload); err != nil {
		return fmt.Errorf("publish roundtable: %w", err)
	}
	return nil
}

func (d *ActionDispatcher) sendNotification(ctx context.Context, agentID string, params map[string]any) {
	title, _ := params["title"].(string)
	if title == "" {
		title = "Agent notification"
	}
	message, _ := params["message"].(string)
	level, _ := params["level"].(string)
	if level == "" {
		level = "info"
	}

	d.notify.Notify(ctx, notifier.Notification{
		AgentID: agentID,
		Title:   title,
		Message: message,
		Level:   level,
		Source:  "trigger.fired",
	})
}

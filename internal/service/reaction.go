package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vanguard-ai/vanguard/internal/domain/memory"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
	"github.com/vanguard-ai/vanguard/internal/port/database"
)

// reactionBatchSize bounds how many reactions one cycle drains, so a burst
// of queued reactions cannot monopolize the heartbeat.
const reactionBatchSize = 25

// ReactionService drains the inter-agent reaction queue: deferred responses
// an agent queued against another agent's events, executed through the same
// action dispatcher as trigger fires.
type ReactionService struct {
	store    database.Store
	dispatch *ActionDispatcher
}

// NewReactionService creates a ReactionService.
func NewReactionService(store database.Store, dispatch *ActionDispatcher) *ReactionService {
	return &ReactionService{store: store, dispatch: dispatch}
}

// ProcessPending executes queued reactions, oldest first. When agentID is
// non-empty, only that agent's reactions are drained this cycle. A failed
// reaction is marked failed and never retried automatically.
func (s *ReactionService) ProcessPending(ctx context.Context, agentID string) (run.Usage, error) {
	reactions, err := s.store.ListPendingReactions(ctx, reactionBatchSize)
	if err != nil {
		return run.Usage{}, fmt.Errorf("list pending reactions: %w", err)
	}

	var usage run.Usage
	for i := range reactions {
		rc := &reactions[i]
		if agentID != "" && rc.AgentID != agentID {
			continue
		}

		cfg, err := reactionAction(rc)
		if err == nil {
			err = s.dispatch.Dispatch(ctx, rc.AgentID, cfg)
		}
		if err != nil {
			slog.Warn("reaction failed", "reaction", rc.ID, "agent", rc.AgentID, "error", err)
			if markErr := s.store.MarkReaction(ctx, rc.ID, memory.ReactionFailed); markErr != nil {
				slog.Error("failed to mark reaction failed", "reaction", rc.ID, "error", markErr)
			}
			continue
		}

		if err := s.store.MarkReaction(ctx, rc.ID, memory.ReactionProcessed); err != nil {
			// The action already ran; surface the bookkeeping failure but
			// keep draining.
			slog.Error("failed to mark reaction processed", "reaction", rc.ID, "error", err)
		}
		usage.Add(EstimateAction(cfg.Type))
	}
	return usage, nil
}

// reactionAction converts a queued reaction into a dispatchable action.
func reactionAction(rc *memory.Reaction) (trigger.ActionConfig, error) {
	cfg := trigger.ActionConfig{Type: trigger.ActionType(rc.ActionType)}
	if len(rc.Params) > 0 {
		if err := json.Unmarshal(rc.Params, &cfg.Params); err != nil {
			return cfg, fmt.Errorf("decode reaction params: %w", err)
		}
	}
	return cfg, nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	vanotel "github.com/vanguard-ai/vanguard/internal/adapter/otel"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/port/broadcast"
	"github.com/vanguard-ai/vanguard/internal/port/database"
)

// opFunc is one heartbeat sub-operation. The extra map is merged into the
// run's per-operation details.
type opFunc func(ctx context.Context, agentID string) (run.Usage, map[string]any, error)

// subOp pairs a sub-operation with its advisory time budget. Budgets are
// wall-clock accounting against the whole cycle: a sub-operation that has
// started is never preempted, but once the cycle's remaining budget is
// exhausted, every later sub-operation is skipped.
type subOp struct {
	name   string
	budget time.Duration
	fn     opFunc
}

// HeartbeatService runs the periodic maintenance cycle: trigger evaluation,
// reaction draining, memory maintenance, and stale-work recovery, in a
// fixed order under a shared time budget. Every cycle leaves a Run audit
// record regardless of which sub-operations ran.
type HeartbeatService struct {
	store   database.Store
	budget  *BudgetService
	hub     broadcast.Broadcaster
	metrics *vanotel.Metrics
	cfg     config.Heartbeat
	ops     []subOp
	now     func() time.Time
}

// NewHeartbeatService wires the sub-operations in their fixed execution
// order. Earlier operations carry the larger budgets: trigger evaluation is
// the cycle's reason to exist, recovery sweeps are cheap.
func NewHeartbeatService(
	store database.Store,
	budgetSvc *BudgetService,
	triggers *TriggerService,
	reactions *ReactionService,
	memorySvc *MemoryService,
	recovery *RecoveryService,
	hub broadcast.Broadcaster,
	cfg config.Heartbeat,
) *HeartbeatService {
	s := &HeartbeatService{
		store:  store,
		budget: budgetSvc,
		hub:    hub,
		cfg:    cfg,
		now:    time.Now,
	}
	s.ops = []subOp{
		{"evaluate_triggers", cfg.TriggerBudget, func(ctx context.Context, agentID string) (run.Usage, map[string]any, error) {
			usage, evals, err := triggers.EvaluateAll(ctx, agentID)
			if err != nil {
				return usage, nil, err
			}
			fired := 0
			for i := range evals {
				if evals[i].Fired {
					fired++
				}
			}
			return usage, map[string]any{"rules": len(evals), "fired": fired}, nil
		}},
		{"process_reactions", cfg.ReactionBudget, func(ctx context.Context, agentID string) (run.Usage, map[string]any, error) {
			usage, err := reactions.ProcessPending(ctx, agentID)
			return usage, nil, err
		}},
		{"promote_insights", cfg.InsightBudget, func(ctx context.Context, agentID string) (run.Usage, map[string]any, error) {
			usage, err := memorySvc.PromoteInsights(ctx, agentID)
			return usage, nil, err
		}},
		{"learn_from_outcomes", cfg.OutcomeBudget, func(ctx context.Context, agentID string) (run.Usage, map[string]any, error) {
			usage, err := memorySvc.LearnFromOutcomes(ctx, agentID)
			return usage, nil, err
		}},
		{"recover_stale_steps", cfg.StaleStepBudget, func(ctx context.Context, _ string) (run.Usage, map[string]any, error) {
			usage, err := recovery.RecoverStaleSteps(ctx)
			return usage, nil, err
		}},
		{"recover_stale_roundtables", cfg.RoundtableBudget, func(ctx context.Context, _ string) (run.Usage, map[string]any, error) {
			usage, err := recovery.RecoverStaleRoundtables(ctx)
			return usage, nil, err
		}},
	}
	return s
}

// SetMetrics attaches metric instruments.
func (s *HeartbeatService) SetMetrics(m *vanotel.Metrics) {
	s.metrics = m
}

// RunHeartbeat executes one maintenance cycle for the agent (system-wide
// when agentID is empty). A sub-operation failure is recorded in the run's
// details and never aborts the cycle; only a bootstrap failure fails the
// run itself. The cycle's consumption is committed to the agent's ledger.
func (s *HeartbeatService) RunHeartbeat(ctx context.Context, agentID string) (*run.Run, error) {
	started := s.now()
	r := &run.Run{
		ID:        uuid.NewString(),
		RunType:   run.TypeHeartbeat,
		AgentID:   agentID,
		StartedAt: started,
		Status:    run.StatusRunning,
		Details:   make(map[string]any, len(s.ops)),
	}
	if err := s.store.CreateRun(ctx, r); err != nil {
		return nil, fmt.Errorf("create heartbeat run: %w", err)
	}

	ctx, span := vanotel.StartHeartbeatSpan(ctx, r.ID, agentID)
	defer span.End()

	s.appendCycleEvent(ctx, agentID, event.TypeHeartbeatStarted, map[string]any{"run_id": r.ID})

	var total run.Usage
	remaining := s.cfg.TotalBudget()
	for _, op := range s.ops {
		if remaining <= 0 {
			r.Details[op.name] = map[string]any{"skipped": true, "reason": "cycle budget exhausted"}
			slog.Debug("heartbeat op skipped", "run", r.ID, "op", op.name)
			continue
		}

		usage, detail, elapsed, err := s.runOp(ctx, op, agentID)
		remaining -= elapsed

		if elapsed > op.budget*3/2 {
			slog.Warn("heartbeat op exceeded budget",
				"run", r.ID,
				"op", op.name,
				"elapsed", elapsed.Round(time.Millisecond),
				"budget", op.budget,
			)
		}

		if detail == nil {
			detail = make(map[string]any, 5)
		}
		detail["duration_ms"] = elapsed.Milliseconds()
		detail["actions"] = usage.Actions
		detail["tokens"] = usage.Tokens
		detail["cost_usd"] = usage.CostUSD
		detail["success"] = err == nil
		if err != nil {
			detail["error"] = err.Error()
			slog.Error("heartbeat op failed", "run", r.ID, "op", op.name, "error", err)
		}
		r.Details[op.name] = detail

		total.Add(usage)
	}

	completed := s.now()
	r.CompletedAt = &completed
	r.DurationMs = completed.Sub(started).Milliseconds()
	r.ActionsTaken = total.Actions
	r.TokensUsed = total.Tokens
	r.CostUSD = total.CostUSD
	r.Status = run.StatusCompleted
	if err := s.store.CompleteRun(ctx, r); err != nil {
		return r, fmt.Errorf("complete heartbeat run %s: %w", r.ID, err)
	}

	if agentID != "" && (total.Tokens > 0 || total.CostUSD > 0) {
		if err := s.budget.TrackUsage(ctx, agentID, budget.OpTrigger, total.Tokens, total.CostUSD); err != nil {
			slog.Error("failed to commit heartbeat usage to ledger",
				"run", r.ID, "agent", agentID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.HeartbeatsRun.Add(ctx, 1,
			metric.WithAttributes(attribute.String("agent.id", agentID)))
		s.metrics.HeartbeatDuration.Record(ctx, completed.Sub(started).Seconds())
	}

	s.appendCycleEvent(ctx, agentID, event.TypeHeartbeatDone, map[string]any{
		"run_id":      r.ID,
		"duration_ms": r.DurationMs,
		"actions":     r.ActionsTaken,
		"cost_usd":    r.CostUSD,
	})
	s.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
		RunID:   r.ID,
		AgentID: agentID,
		Status:  string(r.Status),
		CostUSD: r.CostUSD,
	})

	slog.Info("heartbeat completed",
		"run", r.ID,
		"agent", agentID,
		"duration_ms", r.DurationMs,
		"actions", r.ActionsTaken,
		"cost_usd", r.CostUSD,
	)
	return r, nil
}

// RecentRuns returns the latest run audit records, optionally filtered to
// one agent.
func (s *HeartbeatService) RecentRuns(ctx context.Context, agentID string, limit int) ([]run.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListRecentRuns(ctx, agentID, limit)
}

// runOp executes one sub-operation, converting a panic in a collaborator
// into an error so the cycle keeps its isolation guarantee.
func (s *HeartbeatService) runOp(ctx context.Context, op subOp, agentID string) (usage run.Usage, detail map[string]any, elapsed time.Duration, err error) {
	opCtx, span := vanotel.StartSubOpSpan(ctx, op.name)
	defer span.End()

	start := s.now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", op.name, rec)
		}
		elapsed = s.now().Sub(start)
	}()

	usage, detail, err = op.fn(opCtx, agentID)
	return usage, detail, elapsed, err
}

func (s *HeartbeatService) appendCycleEvent(ctx context.Context, agentID string, t event.Type, payload map[string]any) {
	data, _ := json.Marshal(payload)
	if err := s.store.AppendEvent(ctx, &event.AgentEvent{
		AgentID:   agentID,
		Type:      t,
		Payload:   data,
		CreatedAt: s.now(),
	}); err != nil {
		slog.Warn("failed to append heartbeat event", "type", t, "error", err)
	}
}

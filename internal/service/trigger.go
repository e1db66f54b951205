package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	vanotel "github.com/vanguard-ai/vanguard/internal/adapter/otel"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/domain"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
	"github.com/vanguard-ai/vanguard/internal/port/broadcast"
	"github.com/vanguard-ai/vanguard/internal/port/cache"
	"github.com/vanguard-ai/vanguard/internal/port/database"
)

const ruleCacheTTL = 10 * time.Second

// ConditionFunc evaluates one registered condition_based predicate.
type ConditionFunc func(ctx context.Context, rule *trigger.Rule, params trigger.ConditionParams) (bool, error)

// TriggerService evaluates trigger rules and fires their actions. Rules are
// evaluated one at a time; a failure in one rule never stops the rest.
type TriggerService struct {
	store       database.Store
	cache       cache.Cache
	budget      *BudgetService
	dispatch    *ActionDispatcher
	hub         broadcast.Broadcaster
	metrics     *vanotel.Metrics
	loc         *time.Location
	eventWindow time.Duration
	now         func() time.Time

	condMu     sync.RWMutex
	conditions map[string]ConditionFunc

	schedMu   sync.Mutex
	schedules map[string]*trigger.Schedule
}

// NewTriggerService creates a TriggerService with the built-in condition
// predicates (cost_spike, error_pattern) registered.
func NewTriggerService(store database.Store, c cache.Cache, budgetSvc *BudgetService, dispatch *ActionDispatcher, hub broadcast.Broadcaster, loc *time.Location, eventWindow time.Duration) *TriggerService {
	s := &TriggerService{
		store:       store,
		cache:       c,
		budget:      budgetSvc,
		dispatch:    dispatch,
		hub:         hub,
		loc:         loc,
		eventWindow: eventWindow,
		now:         time.Now,
		conditions:  make(map[string]ConditionFunc),
		schedules:   make(map[string]*trigger.Schedule),
	}
	s.RegisterCondition("cost_spike", s.costSpike)
	s.RegisterCondition("error_pattern", s.errorPattern)
	return s
}

// SetMetrics attaches metric instruments.
func (s *TriggerService) SetMetrics(m *vanotel.Metrics) {
	s.metrics = m
}

// RegisterCondition makes a condition_based predicate available under the
// given kind. Registering an existing kind replaces it.
func (s *TriggerService) RegisterCondition(kind string, fn ConditionFunc) {
	s.condMu.Lock()
	defer s.condMu.Unlock()
	s.conditions[kind] = fn
}

// EvaluateAll evaluates every active rule for the agent (all rules when
// agentID is empty) and fires the ones whose gates all pass. The returned
// usage is the sum of static estimates for the fired actions.
func (s *TriggerService) EvaluateAll(ctx context.Context, agentID string) (run.Usage, []trigger.Evaluation, error) {
	rules, err := s.activeRules(ctx, agentID)
	if err != nil {
		return run.Usage{}, nil, fmt.Errorf("list active rules: %w", err)
	}

	var usage run.Usage
	evals := make([]trigger.Evaluation, 0, len(rules))
	for i := range rules {
		ev := s.evaluateRule(ctx, &rules[i])
		if ev.Fired {
			usage.Add(EstimateAction(rules[i].ActionConfig.Type))
		}
		evals = append(evals, ev)
	}
	return usage, evals, nil
}

// evaluateRule runs one rule through its gates in order: budget policy,
// cooldown, daily cap, then the type-specific condition. Only a rule that
// passes every gate fires.
func (s *TriggerService) evaluateRule(ctx context.Context, r *trigger.Rule) trigger.Evaluation {
	ev := trigger.Evaluation{RuleID: r.ID, Name: r.Name}
	now := s.now()

	blocked, err := s.budget.ShouldBlockOperation(ctx, r.AgentID, budget.OpTrigger, rulePriority(r))
	if err != nil {
		return s.evalError(ctx, r, ev, fmt.Errorf("budget check: %w", err))
	}
	if blocked {
		ev.Reason = "blocked by budget policy"
		return ev
	}

	if in, remaining := r.InCooldown(now); in {
		ev.Reason = fmt.Sprintf("in cooldown (%s remaining)", remaining.Round(time.Second))
		return ev
	}

	if r.MaxFiresPerDay > 0 {
		dayStart := startOfDay(now.In(s.loc))
		fires, err := s.store.CountFiresToday(ctx, r.ID, dayStart)
		if err != nil {
			return s.evalError(ctx, r, ev, fmt.Errorf("count fires: %w", err))
		}
		if fires >= r.MaxFiresPerDay {
			ev.Reason = fmt.Sprintf("daily fire cap reached (%d/%d)", fires, r.MaxFiresPerDay)
			return ev
		}
	}

	met, reason, err := s.conditionMet(ctx, r, now)
	if err != nil {
		return s.evalError(ctx, r, ev, err)
	}
	if !met {
		ev.Reason = reason
		return ev
	}

	if err := s.fire(ctx, r, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			ev.Reason = "fired concurrently by another evaluation"
			return ev
		}
		return s.evalError(ctx, r, ev, err)
	}
	ev.Fired = true
	return ev
}

// conditionMet dispatches to the type-specific condition check.
func (s *TriggerService) conditionMet(ctx context.Context, r *trigger.Rule, now time.Time) (bool, string, error) {
	switch r.TriggerType {
	case trigger.TypeTimeBased:
		var tc trigger.TimeConditions
		if err := json.Unmarshal(r.Conditions, &tc); err != nil {
			return false, "", fmt.Errorf("decode time conditions: %w", err)
		}
		sched, err := s.scheduleFor(tc.Schedule)
		if err != nil {
			return false, "", fmt.Errorf("parse schedule %q: %w", tc.Schedule, err)
		}
		if !sched.Matches(now.In(s.loc)) {
			return false, "schedule does not match current minute", nil
		}
		return true, "", nil

	case trigger.TypeEventBased:
		var ec trigger.EventConditions
		if err := json.Unmarshal(r.Conditions, &ec); err != nil {
			return false, "", fmt.Errorf("decode event conditions: %w", err)
		}
		events, err := s.store.ListEventsSince(ctx, event.Type(ec.EventType), now.Add(-s.eventWindow))
		if err != nil {
			return false, "", fmt.Errorf("list events: %w", err)
		}
		for i := range events {
			if events[i].PayloadContains(ec.Match) {
				return true, "", nil
			}
		}
		return false, fmt.Sprintf("no matching %q event in window", ec.EventType), nil

	case trigger.TypeConditionBased:
		var cp trigger.ConditionParams
		if err := json.Unmarshal(r.Conditions, &cp); err != nil {
			return false, "", fmt.Errorf("decode condition params: %w", err)
		}
		s.condMu.RLock()
		fn, ok := s.conditions[cp.Kind]
		s.condMu.RUnlock()
		if !ok {
			return false, fmt.Sprintf("unknown condition kind %q", cp.Kind), nil
		}
		met, err := fn(ctx, r, cp)
		if err != nil {
			return false, "", fmt.Errorf("condition %q: %w", cp.Kind, err)
		}
		if !met {
			return false, fmt.Sprintf("condition %q not met", cp.Kind), nil
		}
		return true, "", nil

	default:
		return false, fmt.Sprintf("unknown trigger type %q", r.TriggerType), nil
	}
}

// fire atomically records the fire and dispatches the configured action.
// The conditional fire record is what keeps two concurrent evaluations from
// both firing inside one cooldown window.
func (s *TriggerService) fire(ctx context.Context, r *trigger.Rule, now time.Time) error {
	if err := s.store.MarkRuleFired(ctx, r.ID, r.LastFiredAt, now); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, ruleCacheKey(""))
	_ = s.cache.Delete(ctx, ruleCacheKey(r.AgentID))

	if err := s.dispatch.Dispatch(ctx, r.AgentID, r.ActionConfig); err != nil {
		return fmt.Errorf("dispatch action %q: %w", r.ActionConfig.Type, err)
	}

	slog.Info("trigger fired",
		"rule", r.ID,
		"name", r.Name,
		"agent", r.AgentID,
		"action", r.ActionConfig.Type,
	)
	if s.metrics != nil {
		s.metrics.TriggersFired.Add(ctx, 1,
			metric.WithAttributes(attribute.String("action", string(r.ActionConfig.Type))))
	}

	payload, _ := json.Marshal(map[string]any{
		"rule_id": r.ID,
		"name":    r.Name,
		"action":  string(r.ActionConfig.Type),
	})
	if err := s.store.AppendEvent(ctx, &event.AgentEvent{
		AgentID:   r.AgentID,
		Type:      event.TypeTriggerFired,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		slog.Warn("failed to append trigger fired event", "rule", r.ID, "error", err)
	}

	s.hub.BroadcastEvent(ctx, ws.EventTriggerFired, ws.TriggerFiredEvent{
		RuleID:  r.ID,
		AgentID: r.AgentID,
		Name:    r.Name,
		Action:  string(r.ActionConfig.Type),
	})
	return nil
}

// evalError records a rule evaluation failure without failing the sweep.
func (s *TriggerService) evalError(ctx context.Context, r *trigger.Rule, ev trigger.Evaluation, err error) trigger.Evaluation {
	slog.Error("trigger evaluation failed", "rule", r.ID, "name", r.Name, "error", err)
	ev.Error = err.Error()

	payload, _ := json.Marshal(map[string]any{"rule_id": r.ID, "error": err.Error()})
	if appendErr := s.store.AppendEvent(ctx, &event.AgentEvent{
		AgentID:   r.AgentID,
		Type:      event.TypeTriggerError,
		Payload:   payload,
		CreatedAt: s.now(),
	}); appendErr != nil {
		slog.Warn("failed to append trigger error event", "rule", r.ID, "error", appendErr)
	}
	return ev
}

// activeRules lists the rules to evaluate, with a short-lived cache in
// front of the store. Fire bookkeeping invalidates the cache, so a stale
// LastFiredAt can at worst cause one losing MarkRuleFired conflict.
func (s *TriggerService) activeRules(ctx context.Context, agentID string) ([]trigger.Rule, error) {
	key := ruleCacheKey(agentID)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var rules []trigger.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
	}

	rules, err := s.store.ListActiveRules(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rules); err == nil {
		_ = s.cache.Set(ctx, key, data, ruleCacheTTL)
	}
	return rules, nil
}

func ruleCacheKey(agentID string) string {
	return "rules:" + agentID
}

// scheduleFor parses a cron expression, caching the parsed form. Rules are
// re-evaluated every cycle; expressions change rarely.
func (s *TriggerService) scheduleFor(expr string) (*trigger.Schedule, error) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if sched, ok := s.schedules[expr]; ok {
		return sched, nil
	}
	sched, err := trigger.ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	s.schedules[expr] = sched
	return sched, nil
}

// costSpike is met when the agent's highest daily spend inside the window
// exceeds the window's average daily spend by the configured multiplier.
// Window is given in minutes and rounded down to whole days (default 7).
// Fewer than two days of history can never spike.
func (s *TriggerService) costSpike(ctx context.Context, r *trigger.Rule, p trigger.ConditionParams) (bool, error) {
	days := p.WindowMinutes / (60 * 24)
	if days < 2 {
		days = 7
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	now := s.now().In(s.loc)
	since := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	records, err := s.store.ListCostRecordsSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("list cost records: %w", err)
	}

	byDay := make(map[string]float64)
	for i := range records {
		rec := &records[i]
		if rec.AgentID != r.AgentID {
			continue
		}
		byDay[rec.Date] += rec.CostUSD
	}
	if len(byDay) < 2 {
		return false, nil
	}

	var total, peak float64
	for _, cost := range byDay {
		total += cost
		if cost > peak {
			peak = cost
		}
	}
	avg := total / float64(len(byDay))
	return peak > avg*multiplier, nil
}

// errorPattern is met when the agent logged at least threshold error events
// inside the window (minutes, default 60; threshold default 5).
func (s *TriggerService) errorPattern(ctx context.Context, r *trigger.Rule, p trigger.ConditionParams) (bool, error) {
	window := time.Duration(p.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Hour
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = 5
	}

	events, err := s.store.ListEventsSince(ctx, event.TypeError, s.now().Add(-window))
	if err != nil {
		return false, fmt.Errorf("list error events: %w", err)
	}

	count := 0
	for i := range events {
		if events[i].AgentID == r.AgentID {
			count++
		}
	}
	return count >= threshold, nil
}

// rulePriority reads the rule's action priority, defaulting to medium.
func rulePriority(r *trigger.Rule) budget.Priority {
	if p, ok := r.ActionConfig.Params["priority"].(string); ok {
		switch budget.Priority(p) {
		case budget.PriorityLow, budget.PriorityMedium, budget.PriorityHigh:
			return budget.Priority(p)
		}
	}
	return budget.PriorityMedium
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	vanotel "github.com/vanguard-ai/vanguard/internal/adapter/otel"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/port/broadcast"
	"github.com/vanguard-ai/vanguard/internal/port/database"
	"github.com/vanguard-ai/vanguard/internal/port/executor"
)

// contextSnippet bounds how much of each prior output feeds the next step's
// context.
const contextSnippet = 200

// priorityCostUSD are the static per-step cost estimates by mission
// priority. Higher-priority missions are assumed to run on heavier models.
var priorityCostUSD = map[mission.Priority]float64{
	mission.PriorityCritical: 0.50,
	mission.PriorityHigh:     0.35,
	mission.PriorityMedium:   0.20,
	mission.PriorityLow:      0.10,
}

// generalCostFactor scales the priority rate by the resolved general's
// typical model tier. Generals not listed here cost the flat rate.
var generalCostFactor = map[string]float64{
	"architect":  1.5,
	"reviewer":   1.25,
	"coder":      1.0,
	"tester":     0.75,
	"generalist": 0.5,
}

// MissionService runs missions: it walks the step dependency DAG in
// parallel wavefronts, retrying failed steps on fallback generals, and
// reports progress and completion to the external executor host.
type MissionService struct {
	store   database.Store
	exec    executor.Executor
	dry     executor.Executor
	budget  *BudgetService
	hub     broadcast.Broadcaster
	metrics *vanotel.Metrics
	cfg     config.Mission
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewMissionService creates a MissionService. exec performs real work; dry
// is substituted for dry-run missions.
func NewMissionService(store database.Store, exec, dry executor.Executor, budgetSvc *BudgetService, hub broadcast.Broadcaster, cfg config.Mission) *MissionService {
	return &MissionService{
		store:  store,
		exec:   exec,
		dry:    dry,
		budget: budgetSvc,
		hub:    hub,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// SetMetrics attaches metric instruments.
func (s *MissionService) SetMetrics(m *vanotel.Metrics) {
	s.metrics = m
}

// CreateMission persists a new mission with all steps pending.
func (s *MissionService) CreateMission(ctx context.Context, title string, priority mission.Priority, createdBy string, steps []mission.Step) (*mission.Mission, error) {
	if len(steps) == 0 {
		return nil, errors.New("mission needs at least one step")
	}
	now := s.now()
	m := &mission.Mission{
		ID:        uuid.NewString(),
		Title:     title,
		Priority:  priority,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	for i := range steps {
		step := steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.Status = mission.StepPending
		step.UpdatedAt = now
		m.Steps = append(m.Steps, step)
	}
	if err := s.store.CreateMission(ctx, m); err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}
	return m, nil
}

// GetMission loads a mission with its steps.
func (s *MissionService) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	return s.store.GetMission(ctx, id)
}

// runOpts are the per-run settings after merging config defaults with
// caller overrides.
type runOpts struct {
	retries   int
	delay     time.Duration
	fallbacks map[string]string
	exec      executor.Executor
	persist   bool
}

func (s *MissionService) resolveOpts(ov mission.Overrides) runOpts {
	opts := runOpts{
		retries: s.cfg.MaxRetries,
		delay:   time.Duration(s.cfg.RetryDelayMs) * time.Millisecond,
		exec:    s.exec,
		persist: true,
	}
	if ov.MaxRetries > 0 {
		opts.retries = ov.MaxRetries
	}
	if ov.RetryDelayMs > 0 {
		opts.delay = time.Duration(ov.RetryDelayMs) * time.Millisecond
	}
	opts.fallbacks = make(map[string]string, len(s.cfg.FallbackGenerals)+len(ov.FallbackGenerals))
	for role, fb := range s.cfg.FallbackGenerals {
		opts.fallbacks[role] = fb
	}
	for role, fb := range ov.FallbackGenerals {
		opts.fallbacks[role] = fb
	}
	if ov.DryRun {
		opts.exec = s.dry
		opts.persist = false
	}
	return opts
}

// RunMission executes the mission's steps in dependency order. Independent
// ready steps run concurrently as one wavefront; a new wavefront starts
// only when the previous one has fully settled. Steps whose dependencies
// can never complete are skipped, and the mission resolves to completed,
// partial, or failed from its step results.
func (s *MissionService) RunMission(ctx context.Context, m *mission.Mission, ov mission.Overrides) (*mission.Result, error) {
	opts := s.resolveOpts(ov)

	ctx, span := vanotel.StartMissionSpan(ctx, m.ID, string(m.Priority))
	defer span.End()

	s.appendMissionEvent(ctx, m, event.TypeMissionStarted, map[string]any{
		"title":   m.Title,
		"steps":   len(m.Steps),
		"dry_run": ov.DryRun,
	})

	steps := make([]mission.Step, len(m.Steps))
	copy(steps, m.Steps)
	results := make(map[string]*mission.StepResult, len(steps))

	// Steps already terminal from a previous run keep their outcome.
	for i := range steps {
		if steps[i].Status.IsTerminal() {
			results[steps[i].ID] = &mission.StepResult{
				StepID:    steps[i].ID,
				GeneralID: steps[i].AssignedGeneral,
				Status:    steps[i].Status,
				Output:    steps[i].Output,
			}
		}
	}

	var totalCost float64
	var mu sync.Mutex

	for {
		ready := mission.ReadySteps(steps)
		if len(ready) == 0 {
			if mission.PendingCount(steps) > 0 {
				s.skipUnreachable(ctx, m, steps, results, opts)
			}
			break
		}

		// Every step in a wavefront sees the same context: outputs of
		// steps completed before the wavefront started.
		stepContext := buildContext(steps)

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ready {
			idx := stepIndex(steps, id)
			step := steps[idx]
			g.Go(func() error {
				res := s.executeStep(gctx, m, &step, stepContext, opts)

				mu.Lock()
				steps[idx].Status = res.Status
				steps[idx].Output = res.Output
				results[step.ID] = res
				if res.Status == mission.StepCompleted || res.Status == mission.StepFailed {
					totalCost += estimateStepCost(res.GeneralID, m.Priority)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	ordered := make([]mission.StepResult, 0, len(steps))
	for i := range steps {
		if res, ok := results[steps[i].ID]; ok {
			ordered = append(ordered, *res)
		}
	}

	result := &mission.Result{
		MissionID:    m.ID,
		Status:       mission.ResolveStatus(ordered),
		TotalCostUSD: totalCost,
		StepResults:  ordered,
	}
	result.Summary = fmt.Sprintf("%d/%d steps completed (%s)",
		mission.CompletedCount(ordered), len(ordered), result.Status)

	if opts.persist && m.CreatedBy != "" && totalCost > 0 {
		if err := s.budget.TrackUsage(ctx, m.CreatedBy, budget.OpConversation, 0, totalCost); err != nil {
			slog.Error("failed to commit mission cost to ledger",
				"mission", m.ID, "agent", m.CreatedBy, "error", err)
		}
	}

	if err := opts.exec.ReportCompletion(ctx, m.ID, result.Summary, result); err != nil {
		slog.Warn("failed to report mission completion", "mission", m.ID, "error", err)
	}

	s.appendMissionEvent(ctx, m, event.TypeMissionDone, map[string]any{
		"status":   string(result.Status),
		"summary":  result.Summary,
		"cost_usd": result.TotalCostUSD,
	})
	s.hub.BroadcastEvent(ctx, ws.EventMissionStatus, ws.MissionStatusEvent{
		MissionID: m.ID,
		Status:    string(result.Status),
		CostUSD:   result.TotalCostUSD,
	})

	slog.Info("mission finished",
		"mission", m.ID,
		"status", result.Status,
		"steps", len(ordered),
		"cost_usd", result.TotalCostUSD,
	)
	return result, nil
}

// executeStep runs one step with retries. The first attempt goes to the
// assigned general; retry attempts go to its fallback when one is
// configured, otherwise back to the same general.
func (s *MissionService) executeStep(ctx context.Context, m *mission.Mission, step *mission.Step, stepContext string, opts runOpts) *mission.StepResult {
	ctx, span := vanotel.StartStepSpan(ctx, step.ID, step.AssignedGeneral)
	defer span.End()

	start := s.now()
	res := &mission.StepResult{StepID: step.ID, GeneralID: step.AssignedGeneral}

	var lastErr error
	for attempt := 0; attempt <= opts.retries; attempt++ {
		general := step.AssignedGeneral
		if attempt > 0 {
			if fb, ok := opts.fallbacks[step.AssignedGeneral]; ok {
				general = fb
			}
			if err := s.sleep(ctx, opts.delay); err != nil {
				lastErr = err
				break
			}
		}

		// Every attempt announces itself before its terminal report.
		s.markStep(ctx, m, step, mission.StepInProgress, "", opts)

		out, err := s.submit(ctx, opts.exec, general, step, stepContext)
		if err == nil {
			res.GeneralID = general
			res.Status = mission.StepCompleted
			res.Output = out.Output
			res.Retries = attempt
			res.DurationMs = s.now().Sub(start).Milliseconds()
			s.markStep(ctx, m, step, mission.StepCompleted, out.Output, opts)
			if s.metrics != nil {
				s.metrics.StepsExecuted.Add(ctx, 1,
					metric.WithAttributes(attribute.String("status", "completed")))
			}
			return res
		}

		lastErr = err
		slog.Warn("mission step attempt failed",
			"mission", m.ID,
			"step", step.ID,
			"general", general,
			"attempt", attempt+1,
			"error", err,
		)

		// An unknown general stays unknown on retry; only a fallback can
		// rescue the step.
		if errors.Is(err, executor.ErrUnknownGeneral) {
			if _, ok := opts.fallbacks[step.AssignedGeneral]; !ok {
				break
			}
		}
	}

	res.Status = mission.StepFailed
	res.Retries = opts.retries
	res.DurationMs = s.now().Sub(start).Milliseconds()
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	s.failStep(ctx, m, step, res.Error, opts)
	if s.metrics != nil {
		s.metrics.StepsExecuted.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "failed")))
	}
	return res
}

func (s *MissionService) submit(ctx context.Context, exec executor.Executor, general string, step *mission.Step, stepContext string) (*executor.Result, error) {
	subCtx := ctx
	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}
	return exec.Submit(subCtx, executor.Submission{
		Role:            general,
		TaskDescription: step.Input,
		Context:         stepContext,
	})
}

// markStep records a step status change in the store (real runs only) and
// reports it to the executor host and connected clients.
func (s *MissionService) markStep(ctx context.Context, m *mission.Mission, step *mission.Step, status mission.StepStatus, output string, opts runOpts) {
	if opts.persist {
		if err := s.store.UpdateStepStatus(ctx, m.ID, step.ID, status, output); err != nil {
			slog.Error("failed to update step status",
				"mission", m.ID, "step", step.ID, "status", status, "error", err)
		}
	}
	if err := opts.exec.ReportProgress(ctx, m.ID, step.ID, string(status), output); err != nil {
		slog.Warn("failed to report step progress", "step", step.ID, "error", err)
	}
	s.hub.BroadcastEvent(ctx, ws.EventStepStatus, ws.StepStatusEvent{
		MissionID: m.ID,
		StepID:    step.ID,
		General:   step.AssignedGeneral,
		Status:    string(status),
	})
}

func (s *MissionService) failStep(ctx context.Context, m *mission.Mission, step *mission.Step, reason string, opts runOpts) {
	if opts.persist {
		if err := s.store.FailStep(ctx, step.ID, reason); err != nil {
			slog.Error("failed to fail step", "mission", m.ID, "step", step.ID, "error", err)
		}
	}
	if err := opts.exec.ReportProgress(ctx, m.ID, step.ID, string(mission.StepFailed), reason); err != nil {
		slog.Warn("failed to report step failure", "step", step.ID, "error", err)
	}
	s.hub.BroadcastEvent(ctx, ws.EventStepStatus, ws.StepStatusEvent{
		MissionID: m.ID,
		StepID:    step.ID,
		General:   step.AssignedGeneral,
		Status:    string(mission.StepFailed),
	})
}

// skipUnreachable marks every still-pending step skipped: their
// dependencies failed, were skipped, or name unknown steps, so they can
// never become ready.
func (s *MissionService) skipUnreachable(ctx context.Context, m *mission.Mission, steps []mission.Step, results map[string]*mission.StepResult, opts runOpts) {
	for i := range steps {
		if steps[i].Status != mission.StepPending {
			continue
		}
		steps[i].Status = mission.StepSkipped
		results[steps[i].ID] = &mission.StepResult{
			StepID:    steps[i].ID,
			GeneralID: steps[i].AssignedGeneral,
			Status:    mission.StepSkipped,
			Error:     "dependencies cannot be satisfied",
		}
		slog.Warn("mission step skipped",
			"mission", m.ID,
			"step", steps[i].ID,
			"depends_on", steps[i].DependsOn,
		)
		s.markStep(ctx, m, &steps[i], mission.StepSkipped, "", opts)
	}
}

// buildContext summarizes completed step outputs for the next wavefront.
// The very first wavefront gets a neutral marker instead.
func buildContext(steps []mission.Step) string {
	var parts []string
	for i := range steps {
		if steps[i].Status != mission.StepCompleted || steps[i].Output == "" {
			continue
		}
		out := steps[i].Output
		if len(out) > contextSnippet {
			out = out[:contextSnippet] + "…"
		}
		parts = append(parts, fmt.Sprintf("step %s (%s): %s", steps[i].ID, steps[i].AssignedGeneral, out))
	}
	if len(parts) == 0 {
		return "first step, no prior context"
	}
	return strings.Join(parts, "\n")
}

// estimateStepCost looks up the static estimate for one step by the general
// that actually ran it and the mission priority. generalID is the resolved
// general, so a step retried onto a fallback is costed at the fallback's
// rate. Unknown generals cost the flat priority rate.
func estimateStepCost(generalID string, p mission.Priority) float64 {
	base, ok := priorityCostUSD[p]
	if !ok {
		base = priorityCostUSD[mission.PriorityMedium]
	}
	if factor, ok := generalCostFactor[generalID]; ok {
		return base * factor
	}
	return base
}

func stepIndex(steps []mission.Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *MissionService) appendMissionEvent(ctx context.Context, m *mission.Mission, t event.Type, payload map[string]any) {
	data, _ := json.Marshal(payload)
	if err := s.store.AppendEvent(ctx, &event.AgentEvent{
		AgentID:   m.CreatedBy,
		Type:      t,
		Payload:   data,
		CreatedAt: s.now(),
	}); err != nil {
		slog.Warn("failed to append mission event", "mission", m.ID, "type", t, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vanguard-ai/vanguard/internal/adapter/dryrun"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/port/executor"
)

type missionEnv struct {
	svc    *MissionService
	store  *mockStore
	exec   *mockExecutor
	hub    *mockBroadcaster
	sleeps []time.Duration
	mu     sync.Mutex
}

func newMissionEnv(t *testing.T) *missionEnv {
	t.Helper()
	env := &missionEnv{
		store: newMockStore(),
		exec:  &mockExecutor{},
		hub:   &mockBroadcaster{},
	}
	notify := NewNotificationService(nil, nil)
	budgetSvc := NewBudgetService(env.store, newMockCache(), notify, env.hub, budget.DefaultThresholds(), time.UTC)
	budgetSvc.now = fixedClock(testNow)

	env.svc = NewMissionService(env.store, env.exec, dryrun.New(), budgetSvc, env.hub, config.Defaults().Mission)
	env.svc.now = fixedClock(testNow)
	env.svc.sleep = func(_ context.Context, d time.Duration) error {
		env.mu.Lock()
		env.sleeps = append(env.sleeps, d)
		env.mu.Unlock()
		return nil
	}
	return env
}

func diamondMission() *mission.Mission {
	return &mission.Mission{
		ID:        "m1",
		Title:     "refactor auth",
		Priority:  mission.PriorityMedium,
		CreatedBy: "a1",
		Steps: []mission.Step{
			{ID: "a", AssignedGeneral: "architect", Status: mission.StepPending, Input: "design"},
			{ID: "b", AssignedGeneral: "coder", Status: mission.StepPending, Input: "implement", DependsOn: []string{"a"}},
			{ID: "c", AssignedGeneral: "tester", Status: mission.StepPending, Input: "test", DependsOn: []string{"a"}},
			{ID: "d", AssignedGeneral: "reviewer", Status: mission.StepPending, Input: "review", DependsOn: []string{"b", "c"}},
		},
	}
}

func TestRunMissionDiamond(t *testing.T) {
	env := newMissionEnv(t)

	res, err := env.svc.RunMission(context.Background(), diamondMission(), mission.Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusCompleted {
		t.Fatalf("status = %q, want completed: %+v", res.Status, res.StepResults)
	}
	if len(res.StepResults) != 4 {
		t.Fatalf("got %d step results, want 4", len(res.StepResults))
	}
	// Results come back in declaration order regardless of wavefront timing.
	for i, id := range []string{"a", "b", "c", "d"} {
		if res.StepResults[i].StepID != id {
			t.Errorf("result[%d] = %q, want %q", i, res.StepResults[i].StepID, id)
		}
		if res.StepResults[i].Status != mission.StepCompleted {
			t.Errorf("step %s status = %q", id, res.StepResults[i].Status)
		}
	}
	if math.Abs(res.TotalCostUSD-0.90) > 1e-9 {
		t.Errorf("total cost = $%.2f, want $0.90 across the four generals", res.TotalCostUSD)
	}

	// The final step sees its predecessors' outputs, the first sees none.
	var first, last executor.Submission
	for _, sub := range env.exec.submissions {
		switch sub.Role {
		case "architect":
			first = sub
		case "reviewer":
			last = sub
		}
	}
	if first.Context != "first step, no prior context" {
		t.Errorf("first step context = %q", first.Context)
	}
	if !strings.Contains(last.Context, "step b (coder)") || !strings.Contains(last.Context, "step c (tester)") {
		t.Errorf("final step context = %q, want outputs of b and c", last.Context)
	}

	// Cost is committed to the creator's ledger.
	rec := env.store.costs[costKey("a1", testDate)]
	if rec == nil || math.Abs(rec.CostUSD-0.90) > 1e-9 {
		t.Errorf("ledger row = %+v, want $0.90 for a1", rec)
	}
	if len(env.exec.completions) != 1 || env.exec.completions[0] != "m1" {
		t.Errorf("completions = %v, want [m1]", env.exec.completions)
	}
	if !env.hub.has(ws.EventMissionStatus) || !env.hub.has(ws.EventStepStatus) {
		t.Error("mission and step status should broadcast")
	}
}

func TestRunMissionSkipsUnreachableSteps(t *testing.T) {
	env := newMissionEnv(t)
	m := &mission.Mission{
		ID:       "m1",
		Title:    "orphan",
		Priority: mission.PriorityLow,
		Steps: []mission.Step{
			{ID: "a", AssignedGeneral: "coder", Status: mission.StepPending},
			{ID: "b", AssignedGeneral: "coder", Status: mission.StepPending, DependsOn: []string{"ghost"}},
		},
	}

	res, err := env.svc.RunMission(context.Background(), m, mission.Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusPartial {
		t.Fatalf("status = %q, want partial", res.Status)
	}
	var skipped *mission.StepResult
	for i := range res.StepResults {
		if res.StepResults[i].StepID == "b" {
			skipped = &res.StepResults[i]
		}
	}
	if skipped == nil || skipped.Status != mission.StepSkipped {
		t.Fatalf("step b = %+v, want skipped", skipped)
	}
	if !strings.Contains(skipped.Error, "dependencies cannot be satisfied") {
		t.Errorf("skip error = %q", skipped.Error)
	}
	if env.exec.submissionCount() != 1 {
		t.Errorf("submissions = %d, want only step a", env.exec.submissionCount())
	}
}

func TestRunMissionFailsOnDependencyCycle(t *testing.T) {
	env := newMissionEnv(t)
	m := &mission.Mission{
		ID:       "m1",
		Title:    "deadlocked",
		Priority: mission.PriorityMedium,
		Steps: []mission.Step{
			{ID: "a", AssignedGeneral: "coder", Status: mission.StepPending, DependsOn: []string{"b"}},
			{ID: "b", AssignedGeneral: "tester", Status: mission.StepPending, DependsOn: []string{"a"}},
		},
	}

	res, err := env.svc.RunMission(context.Background(), m, mission.Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if len(res.StepResults) != 2 {
		t.Fatalf("step results = %d, want both cycle members", len(res.StepResults))
	}
	for _, sr := range res.StepResults {
		if sr.Status != mission.StepSkipped {
			t.Errorf("step %s = %q, want skipped", sr.StepID, sr.Status)
		}
		if !strings.Contains(sr.Error, "dependencies cannot be satisfied") {
			t.Errorf("step %s skip error = %q", sr.StepID, sr.Error)
		}
	}
	if env.exec.submissionCount() != 0 {
		t.Errorf("submissions = %d, want none for a deadlocked mission", env.exec.submissionCount())
	}
}

func TestRunMissionRetriesOnFallbackGeneral(t *testing.T) {
	env := newMissionEnv(t)
	env.exec.submitFn = func(sub executor.Submission) (*executor.Result, error) {
		if sub.Role == "coder" {
			return nil, errors.New("overloaded")
		}
		return &executor.Result{Output: "done"}, nil
	}
	m := &mission.Mission{
		ID:       "m1",
		Title:    "flaky",
		Priority: mission.PriorityHigh,
		Steps:    []mission.Step{{ID: "a", AssignedGeneral: "coder", Status: mission.StepPending}},
	}
	ov := mission.Overrides{FallbackGenerals: map[string]string{"coder": "generalist"}}

	res, err := env.svc.RunMission(context.Background(), m, ov)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusCompleted {
		t.Fatalf("status = %q, want completed via fallback: %+v", res.Status, res.StepResults)
	}
	sr := res.StepResults[0]
	if sr.GeneralID != "generalist" || sr.Retries != 1 {
		t.Errorf("result = general %q after %d retries, want generalist after 1", sr.GeneralID, sr.Retries)
	}
	if got := env.exec.rolesSubmitted(); len(got) != 2 || got[0] != "coder" || got[1] != "generalist" {
		t.Errorf("roles submitted = %v", got)
	}
	if len(env.sleeps) != 1 || env.sleeps[0] != 5*time.Second {
		t.Errorf("retry delays = %v, want one 5s delay", env.sleeps)
	}
	// Both attempts announce in-progress before the single terminal report.
	if got := env.exec.progressReports("a", string(mission.StepInProgress)); got != 2 {
		t.Errorf("in-progress reports = %d, want one per attempt", got)
	}
	if got := env.exec.progressReports("a", string(mission.StepCompleted)); got != 1 {
		t.Errorf("completed reports = %d, want 1", got)
	}
}

func TestRunMissionUnknownGeneralFailsFast(t *testing.T) {
	env := newMissionEnv(t)
	env.exec.submitFn = func(executor.Submission) (*executor.Result, error) {
		return nil, executor.ErrUnknownGeneral
	}
	m := &mission.Mission{
		ID:       "m1",
		Title:    "misrouted",
		Priority: mission.PriorityMedium,
		Steps:    []mission.Step{{ID: "a", AssignedGeneral: "nobody", Status: mission.StepPending}},
	}

	res, err := env.svc.RunMission(context.Background(), m, mission.Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	// Retrying the same unknown general is pointless without a fallback.
	if env.exec.submissionCount() != 1 {
		t.Errorf("submissions = %d, want 1", env.exec.submissionCount())
	}
	if _, ok := env.store.failedSteps["a"]; !ok {
		t.Error("failed step should be persisted")
	}
}

func TestRunMissionExhaustsRetries(t *testing.T) {
	env := newMissionEnv(t)
	env.exec.submitFn = func(executor.Submission) (*executor.Result, error) {
		return nil, errors.New("always down")
	}
	m := &mission.Mission{
		ID:       "m1",
		Title:    "doomed",
		Priority: mission.PriorityMedium,
		Steps:    []mission.Step{{ID: "a", AssignedGeneral: "coder", Status: mission.StepPending}},
	}

	res, err := env.svc.RunMission(context.Background(), m, mission.Overrides{MaxRetries: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if env.exec.submissionCount() != 3 {
		t.Errorf("submissions = %d, want initial attempt plus 2 retries", env.exec.submissionCount())
	}
	if !strings.Contains(res.StepResults[0].Error, "always down") {
		t.Errorf("step error = %q", res.StepResults[0].Error)
	}
}

func TestRunMissionDryRun(t *testing.T) {
	env := newMissionEnv(t)

	res, err := env.svc.RunMission(context.Background(), diamondMission(), mission.Overrides{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if env.exec.submissionCount() != 0 {
		t.Errorf("dry run reached the real executor %d times", env.exec.submissionCount())
	}
	if len(env.store.stepUpdates) != 0 || len(env.store.failedSteps) != 0 {
		t.Error("dry run must not persist step status")
	}
	if len(env.store.costs) != 0 {
		t.Error("dry run must not touch the ledger")
	}
	for _, sr := range res.StepResults {
		if !strings.Contains(sr.Output, "[dry-run]") {
			t.Errorf("step %s output = %q, want synthesized", sr.StepID, sr.Output)
		}
	}
}

func TestRunMissionKeepsPriorTerminalSteps(t *testing.T) {
	env := newMissionEnv(t)
	m := &mission.Mission{
		ID:       "m1",
		Title:    "resumed",
		Priority: mission.PriorityMedium,
		Steps: []mission.Step{
			{ID: "a", AssignedGeneral: "architect", Status: mission.StepCompleted, Output: "plan"},
			{ID: "b", AssignedGeneral: "coder", Status: mission.StepPending, DependsOn: []string{"a"}},
		},
	}

	res, err := env.svc.RunMission(context.Background(), m, mission.Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != mission.StatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if env.exec.submissionCount() != 1 {
		t.Errorf("submissions = %d, want only step b re-executed", env.exec.submissionCount())
	}
	// Only the fresh step is charged.
	if math.Abs(res.TotalCostUSD-0.20) > 1e-9 {
		t.Errorf("total cost = $%.2f, want $0.20", res.TotalCostUSD)
	}
}

func TestCreateMission(t *testing.T) {
	env := newMissionEnv(t)

	if _, err := env.svc.CreateMission(context.Background(), "empty", mission.PriorityLow, "a1", nil); err == nil {
		t.Fatal("mission with no steps should be rejected")
	}

	m, err := env.svc.CreateMission(context.Background(), "deploy", mission.PriorityHigh, "a1", []mission.Step{
		{AssignedGeneral: "coder", Input: "ship it"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.Steps[0].ID == "" {
		t.Error("mission and step IDs should be generated")
	}
	if m.Steps[0].Status != mission.StepPending {
		t.Errorf("new step status = %q, want pending", m.Steps[0].Status)
	}
	if _, ok := env.store.missions[m.ID]; !ok {
		t.Error("mission not persisted")
	}
}

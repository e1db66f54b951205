package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/memory"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/domain/roundtable"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
	"github.com/vanguard-ai/vanguard/internal/port/broadcast"
	"github.com/vanguard-ai/vanguard/internal/port/cache"
	"github.com/vanguard-ai/vanguard/internal/port/database"
	"github.com/vanguard-ai/vanguard/internal/port/executor"
	"github.com/vanguard-ai/vanguard/internal/port/messagequeue"
	"github.com/vanguard-ai/vanguard/internal/port/notifier"
)

var (
	_ database.Store        = (*mockStore)(nil)
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
	_ cache.Cache           = (*mockCache)(nil)
	_ executor.Executor     = (*mockExecutor)(nil)
	_ notifier.Notifier     = (*mockNotifier)(nil)
)

// mockStore is an in-memory database.Store for testing.
type mockStore struct {
	mu sync.Mutex

	runs          []run.Run
	completedRuns []run.Run
	createRunErr  error

	rules        []trigger.Rule
	listRulesErr error
	firedRules   []string
	fires        map[string]int
	markFiredErr error

	costs       map[string]*budget.CostRecord // agentID|date
	alertLevels map[string]budget.AlertLevel
	thresholds  *budget.Thresholds
	addUsageErr error

	events []event.AgentEvent

	memories    []memory.Record
	tierUpdates map[string]memory.Tier
	newMemories []memory.Record

	reactions     []memory.Reaction
	reactionMarks map[string]memory.ReactionStatus

	missions       map[string]*mission.Mission
	stepUpdates    []stepUpdate
	staleSteps     []mission.Step
	resetSteps     []string
	failedSteps    map[string]string
	recentMissions []mission.Mission

	roundtables      []roundtable.Roundtable
	staleRoundtables []roundtable.Roundtable
	expired          []string
}

type stepUpdate struct {
	missionID string
	stepID    string
	status    mission.StepStatus
	output    string
}

func newMockStore() *mockStore {
	return &mockStore{
		fires:         make(map[string]int),
		costs:         make(map[string]*budget.CostRecord),
		alertLevels:   make(map[string]budget.AlertLevel),
		tierUpdates:   make(map[string]memory.Tier),
		reactionMarks: make(map[string]memory.ReactionStatus),
		missions:      make(map[string]*mission.Mission),
		failedSteps:   make(map[string]string),
	}
}

func costKey(agentID, date string) string { return agentID + "|" + date }

func (s *mockStore) CreateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createRunErr != nil {
		return s.createRunErr
	}
	s.runs = append(s.runs, *r)
	return nil
}

func (s *mockStore) CompleteRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedRuns = append(s.completedRuns, *r)
	return nil
}

func (s *mockStore) ListRecentRuns(_ context.Context, agentID string, limit int) ([]run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.Run
	for _, r := range s.runs {
		if agentID == "" || r.AgentID == agentID {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *mockStore) ListActiveRules(_ context.Context, agentID string) ([]trigger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listRulesErr != nil {
		return nil, s.listRulesErr
	}
	var out []trigger.Rule
	for _, r := range s.rules {
		if agentID == "" || r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *mockStore) MarkRuleFired(_ context.Context, ruleID string, _ *time.Time, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markFiredErr != nil {
		return s.markFiredErr
	}
	s.firedRules = append(s.firedRules, ruleID)
	s.fires[ruleID]++
	return nil
}

func (s *mockStore) CountFiresToday(_ context.Context, ruleID string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fires[ruleID], nil
}

func (s *mockStore) AddUsage(_ context.Context, agentID, date, operation string, tokens int64, costUSD float64) (*budget.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addUsageErr != nil {
		return nil, s.addUsageErr
	}
	key := costKey(agentID, date)
	rec, ok := s.costs[key]
	if !ok {
		rec = &budget.CostRecord{
			AgentID:         agentID,
			Date:            date,
			AlertLevel:      budget.AlertNormal,
			OperationCounts: make(map[string]int),
		}
		s.costs[key] = rec
	}
	rec.TokensUsed += tokens
	rec.CostUSD += costUSD
	rec.OperationCounts[operation]++
	cp := *rec
	return &cp, nil
}

func (s *mockStore) GetCostRecord(_ context.Context, agentID, date string) (*budget.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.costs[costKey(agentID, date)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *mockStore) SetAlertLevel(_ context.Context, agentID, date string, level budget.AlertLevel, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertLevels[costKey(agentID, date)] = level
	if rec, ok := s.costs[costKey(agentID, date)]; ok {
		rec.AlertLevel = level
		rec.AlertSentAt = &sentAt
	}
	return nil
}

func (s *mockStore) ListCostRecordsSince(_ context.Context, since string) ([]budget.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []budget.CostRecord
	for _, rec := range s.costs {
		if rec.Date >= since {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *mockStore) GetThresholds(_ context.Context) (*budget.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thresholds == nil {
		return nil, domain.ErrNotFound
	}
	cp := *s.thresholds
	return &cp, nil
}

func (s *mockStore) SaveThresholds(_ context.Context, t budget.Thresholds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = &t
	return nil
}

func (s *mockStore) AppendEvent(_ context.Context, ev *event.AgentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *mockStore) ListEventsSince(_ context.Context, eventType event.Type, since time.Time) ([]event.AgentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.AgentEvent
	for _, ev := range s.events {
		if ev.Type == eventType && !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *mockStore) eventsOfType(t event.Type) []event.AgentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.AgentEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *mockStore) ListMemoryByTier(_ context.Context, tier memory.Tier, limit int) ([]memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Record
	for _, rec := range s.memories {
		if rec.Tier == tier {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *mockStore) UpdateMemoryTier(_ context.Context, id string, tier memory.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tierUpdates[id] = tier
	return nil
}

func (s *mockStore) CreateMemory(_ context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newMemories = append(s.newMemories, *rec)
	return nil
}

func (s *mockStore) ListPendingReactions(_ context.Context, limit int) ([]memory.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Reaction
	for _, rc := range s.reactions {
		if rc.Status == memory.ReactionPending {
			out = append(out, rc)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *mockStore) MarkReaction(_ context.Context, id string, status memory.ReactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactionMarks[id] = status
	return nil
}

func (s *mockStore) GetMission(_ context.Context, id string) (*mission.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *mockStore) CreateMission(_ context.Context, m *mission.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.missions[m.ID] = &cp
	return nil
}

func (s *mockStore) UpdateStepStatus(_ context.Context, missionID, stepID string, status mission.StepStatus, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepUpdates = append(s.stepUpdates, stepUpdate{missionID, stepID, status, output})
	return nil
}

func (s *mockStore) ListStaleSteps(_ context.Context, _ time.Time) ([]mission.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mission.Step(nil), s.staleSteps...), nil
}

func (s *mockStore) ResetStep(_ context.Context, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetSteps = append(s.resetSteps, stepID)
	return nil
}

func (s *mockStore) FailStep(_ context.Context, stepID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedSteps[stepID] = reason
	return nil
}

func (s *mockStore) ListRecentMissions(_ context.Context, _ time.Time) ([]mission.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mission.Mission(nil), s.recentMissions...), nil
}

func (s *mockStore) CreateRoundtable(_ context.Context, rt *roundtable.Roundtable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundtables = append(s.roundtables, *rt)
	return nil
}

func (s *mockStore) ListStaleRoundtables(_ context.Context, _ time.Time) ([]roundtable.Roundtable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roundtable.Roundtable(nil), s.staleRoundtables...), nil
}

func (s *mockStore) ExpireRoundtable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, id)
	return nil
}

// mockBroadcaster records broadcast events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *mockBroadcaster) has(eventType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, publishedMsg{subject, data})
	return nil
}

func (q *mockQueue) Request(_ context.Context, _ string, _ []byte, _ time.Duration) ([]byte, error) {
	return nil, nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjectCount(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.published {
		if m.subject == subject {
			n++
		}
	}
	return n
}

// mockCache is a TTL-less map cache.
type mockCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// mockExecutor scripts Submit outcomes per general role.
type mockExecutor struct {
	mu          sync.Mutex
	submitFn    func(sub executor.Submission) (*executor.Result, error)
	submissions []executor.Submission
	progress    []string // "stepID:status"
	completions []string // missionID
}

func (e *mockExecutor) Submit(_ context.Context, sub executor.Submission) (*executor.Result, error) {
	e.mu.Lock()
	e.submissions = append(e.submissions, sub)
	fn := e.submitFn
	e.mu.Unlock()
	if fn != nil {
		return fn(sub)
	}
	return &executor.Result{Output: "ok from " + sub.Role, TokensUsed: 100}, nil
}

func (e *mockExecutor) ReportProgress(_ context.Context, _, stepID, status, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = append(e.progress, stepID+":"+status)
	return nil
}

func (e *mockExecutor) progressReports(stepID, status string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.progress {
		if p == stepID+":"+status {
			n++
		}
	}
	return n
}

func (e *mockExecutor) ReportCompletion(_ context.Context, missionID string, _ string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completions = append(e.completions, missionID)
	return nil
}

func (e *mockExecutor) submissionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.submissions)
}

func (e *mockExecutor) rolesSubmitted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var roles []string
	for _, sub := range e.submissions {
		roles = append(roles, sub.Role)
	}
	return roles
}

// mockNotifier records sent notifications.
type mockNotifier struct {
	mu      sync.Mutex
	name    string
	sent    []notifier.Notification
	sendErr error
}

func (n *mockNotifier) Name() string {
	if n.name == "" {
		return "mock"
	}
	return n.name
}

func (n *mockNotifier) Send(_ context.Context, notification notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *mockNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// fixedClock returns a clock function pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

// detailString formats run details for assertion messages.
func detailString(d map[string]any) string {
	var b strings.Builder
	for k, v := range d {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	return b.String()
}

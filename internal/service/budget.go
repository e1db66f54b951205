package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	vanotel "github.com/vanguard-ai/vanguard/internal/adapter/otel"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/domain"
	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/port/broadcast"
	"github.com/vanguard-ai/vanguard/internal/port/cache"
	"github.com/vanguard-ai/vanguard/internal/port/database"
	"github.com/vanguard-ai/vanguard/internal/port/notifier"
)

const costCacheTTL = 30 * time.Second

// BudgetService is the budget ledger: it accumulates per-agent daily spend,
// classifies agents into alert tiers, and answers the operation-blocking
// policy. Thresholds are process-wide and hot-reloadable.
type BudgetService struct {
	store   database.Store
	cache   cache.Cache
	notify  *NotificationService
	hub     broadcast.Broadcaster
	metrics *vanotel.Metrics
	loc     *time.Location
	now     func() time.Time

	mu         sync.RWMutex
	thresholds budget.Thresholds
}

// NewBudgetService creates a BudgetService seeded with the given thresholds.
// Ledger days roll over at midnight in loc.
func NewBudgetService(store database.Store, c cache.Cache, notify *NotificationService, hub broadcast.Broadcaster, seed budget.Thresholds, loc *time.Location) *BudgetService {
	return &BudgetService{
		store:      store,
		cache:      c,
		notify:     notify,
		hub:        hub,
		loc:        loc,
		now:        time.Now,
		thresholds: seed,
	}
}

// SetMetrics attaches metric instruments.
func (s *BudgetService) SetMetrics(m *vanotel.Metrics) {
	s.metrics = m
}

// LoadThresholds replaces the seed thresholds with the persisted ones, or
// persists the seed if nothing is stored yet. Called once at startup.
func (s *BudgetService) LoadThresholds(ctx context.Context) error {
	t, err := s.store.GetThresholds(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.mu.RLock()
		seed := s.thresholds
		s.mu.RUnlock()
		if err := s.store.SaveThresholds(ctx, seed); err != nil {
			return fmt.Errorf("seed thresholds: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}

	s.mu.Lock()
	s.thresholds = *t
	s.mu.Unlock()
	return nil
}

// Thresholds returns the currently active thresholds.
func (s *BudgetService) Thresholds() budget.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// UpdateThresholds validates, persists, and activates new thresholds.
// In-flight operations keep the tiers they read; subsequent classifications
// use the new ones.
func (s *BudgetService) UpdateThresholds(ctx context.Context, t budget.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveThresholds(ctx, t); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}

	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()

	slog.Info("cost thresholds updated",
		"warning_usd", t.WarningUSD,
		"slowdown_usd", t.SlowdownUSD,
		"emergency_usd", t.EmergencyUSD,
	)
	return nil
}

// TrackUsage adds one operation's consumption to the agent's ledger row for
// today. If the new total crosses into a higher alert tier, the tier change
// is persisted, logged, broadcast, and notified.
func (s *BudgetService) TrackUsage(ctx context.Context, agentID string, operation budget.OperationType, tokens int64, costUSD float64) error {
	now := s.now().In(s.loc)
	date := now.Format("2006-01-02")

	rec, err := s.store.AddUsage(ctx, agentID, date, string(operation), tokens, costUSD)
	if err != nil {
		return fmt.Errorf("track usage for agent %s: %w", agentID, err)
	}
	_ = s.cache.Delete(ctx, costCacheKey(agentID, date))

	if s.metrics != nil {
		s.metrics.DailyCost.Record(ctx, rec.CostUSD,
			metric.WithAttributes(attribute.String("agent.id", agentID)))
	}

	level := budget.DetermineAlertLevel(rec.CostUSD, s.Thresholds())
	if level != rec.AlertLevel {
		s.raiseAlert(ctx, rec, level, now)
	}
	return nil
}

// raiseAlert records and fans out an alert tier change. Every step after the
// persisted level change is best-effort.
func (s *BudgetService) raiseAlert(ctx context.Context, rec *budget.CostRecord, level budget.AlertLevel, now time.Time) {
	if err := s.store.SetAlertLevel(ctx, rec.AgentID, rec.Date, level, now); err != nil {
		slog.Error("failed to persist alert level",
			"agent", rec.AgentID, "level", level, "error", err)
		return
	}

	slog.Warn("budget alert level changed",
		"agent", rec.AgentID,
		"level", level,
		"cost_usd", rec.CostUSD,
	)

	payload, _ := json.Marshal(map[string]any{
		"level":    string(level),
		"cost_usd": rec.CostUSD,
		"date":     rec.Date,
	})
	if err := s.store.AppendEvent(ctx, &event.AgentEvent{
		AgentID:   rec.AgentID,
		Type:      event.TypeBudgetAlert,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		slog.Warn("failed to append budget alert event", "agent", rec.AgentID, "error", err)
	}

	s.hub.BroadcastEvent(ctx, ws.EventBudgetAlert, ws.BudgetAlertEvent{
		AgentID: rec.AgentID,
		Level:   string(level),
		CostUSD: rec.CostUSD,
	})

	s.notify.Notify(ctx, notifier.Notification{
		AgentID: rec.AgentID,
		Title:   fmt.Sprintf("Budget %s for agent %s", level, rec.AgentID),
		Message: fmt.Sprintf("Daily spend reached $%.2f on %s.", rec.CostUSD, rec.Date),
		Level:   string(level),
		Source:  "budget.alert",
	})
}

// ShouldBlockOperation answers the blocking policy for one prospective
// operation. An agent with no ledger row today is unrestricted.
//
// Emergency blocks everything except high-priority operations. Slowdown
// blocks only low-priority triggers when so configured; slowed-down
// conversations and proposals pass, with throttling and manual approval
// left to the caller via SlowdownEffects.
func (s *BudgetService) ShouldBlockOperation(ctx context.Context, agentID string, op budget.OperationType, priority budget.Priority) (bool, error) {
	rec, err := s.costRecordToday(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blocking check for agent %s: %w", agentID, err)
	}

	t := s.Thresholds()
	level := budget.DetermineAlertLevel(rec.CostUSD, t)

	blocked := false
	switch level {
	case budget.AlertEmergency:
		blocked = priority != budget.PriorityHigh
	case budget.AlertSlowdown:
		if op == budget.OpTrigger {
			blocked = t.Effects.SkipLowPriorityTriggers && priority == budget.PriorityLow
		}
	}

	if blocked {
		slog.Info("operation blocked by budget policy",
			"agent", agentID, "operation", op, "priority", priority, "level", level)
		if s.metrics != nil {
			s.metrics.OperationsBlocked.Add(ctx, 1,
				metric.WithAttributes(attribute.String("operation", string(op))))
		}
	}
	return blocked, nil
}

// SlowdownEffects returns the throttling policy for an agent currently in
// slowdown or emergency, or nil when the agent is unrestricted.
func (s *BudgetService) SlowdownEffects(ctx context.Context, agentID string) (*budget.SlowdownEffects, error) {
	rec, err := s.costRecordToday(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t := s.Thresholds()
	switch budget.DetermineAlertLevel(rec.CostUSD, t) {
	case budget.AlertSlowdown, budget.AlertEmergency:
		effects := t.Effects
		return &effects, nil
	default:
		return nil, nil
	}
}

// DailySummary returns today's spend for one agent with a naive linear
// projection: spend so far, scaled to a full day by elapsed time since
// midnight. An agent with no spend today gets a zeroed summary.
func (s *BudgetService) DailySummary(ctx context.Context, agentID string) (*budget.DailySummary, error) {
	now := s.now().In(s.loc)
	date := now.Format("2006-01-02")

	rec, err := s.costRecordToday(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return &budget.DailySummary{AgentID: agentID, Date: date, AlertLevel: budget.AlertNormal}, nil
	}
	if err != nil {
		return nil, err
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	elapsed := now.Sub(midnight).Hours()
	projected := rec.CostUSD
	if elapsed >= 1 {
		projected = rec.CostUSD / elapsed * 24
	}

	return &budget.DailySummary{
		AgentID:          agentID,
		Date:             rec.Date,
		TokensUsed:       rec.TokensUsed,
		CostUSD:          rec.CostUSD,
		AlertLevel:       budget.DetermineAlertLevel(rec.CostUSD, s.Thresholds()),
		ProjectedCostUSD: projected,
		OperationCounts:  rec.OperationCounts,
	}, nil
}

// SystemStats aggregates spend across all agents over the trailing window of
// days (today included). The trend compares the window's two halves with a
// ±10% dead zone so small fluctuations read as stable.
func (s *BudgetService) SystemStats(ctx context.Context, days int) (*budget.SystemStats, error) {
	if days < 1 {
		days = 7
	}
	now := s.now().In(s.loc)
	since := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	records, err := s.store.ListCostRecordsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}

	stats := &budget.SystemStats{Days: days, Trend: budget.TrendStable}
	perAgent := make(map[string]float64)
	perDay := make(map[string]float64)
	for i := range records {
		r := &records[i]
		stats.TotalCostUSD += r.CostUSD
		perAgent[r.AgentID] += r.CostUSD
		perDay[r.Date] += r.CostUSD
	}
	stats.AvgDailyUSD = stats.TotalCostUSD / float64(days)

	for agentID, cost := range perAgent {
		share := budget.AgentShare{AgentID: agentID, CostUSD: cost}
		if stats.TotalCostUSD > 0 {
			share.Percent = cost / stats.TotalCostUSD * 100
		}
		stats.PerAgent = append(stats.PerAgent, share)
	}
	sort.Slice(stats.PerAgent, func(i, j int) bool {
		return stats.PerAgent[i].CostUSD > stats.PerAgent[j].CostUSD
	})

	stats.Trend = spendTrend(perDay, now, days, s.loc)
	return stats, nil
}

// spendTrend compares spend in the older and newer halves of the window.
// Changes within ±10% of the older half count as stable.
func spendTrend(perDay map[string]float64, now time.Time, days int, loc *time.Location) budget.Trend {
	if days < 2 {
		return budget.TrendStable
	}
	half := days / 2
	var older, newer float64
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).In(loc).Format("2006-01-02")
		if i < half {
			newer += perDay[date]
		} else {
			older += perDay[date]
		}
	}
	// Windows with an odd day count give the older half one extra day;
	// compare per-day averages so that day does not skew the trend.
	newer /= float64(half)
	older /= float64(days - half)

	if older == 0 {
		if newer > 0 {
			return budget.TrendIncreasing
		}
		return budget.TrendStable
	}
	switch delta := (newer - older) / older; {
	case delta > 0.10:
		return budget.TrendIncreasing
	case delta < -0.10:
		return budget.TrendDecreasing
	default:
		return budget.TrendStable
	}
}

// costRecordToday returns the agent's ledger row for today, consulting the
// short-lived cache first. Cache contents are an optimization only; every
// write path invalidates them.
func (s *BudgetService) costRecordToday(ctx context.Context, agentID string) (*budget.CostRecord, error) {
	date := s.now().In(s.loc).Format("2006-01-02")
	key := costCacheKey(agentID, date)

	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var rec budget.CostRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
	}

	rec, err := s.store.GetCostRecord(ctx, agentID, date)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rec); err == nil {
		_ = s.cache.Set(ctx, key, data, costCacheTTL)
	}
	return rec, nil
}

func costCacheKey(agentID, date string) string {
	return "cost:" + agentID + ":" + date
}

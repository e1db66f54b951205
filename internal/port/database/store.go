// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/memory"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/domain/roundtable"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
)

// Store is the port interface for all persistent state: runs, trigger
// rules, cost tracking, events, memory, missions, and roundtables.
type Store interface {
	// Runs (append + exactly one terminal update)
	CreateRun(ctx context.Context, r *run.Run) error
	CompleteRun(ctx context.Context, r *run.Run) error
	ListRecentRuns(ctx context.Context, agentID string, limit int) ([]run.Run, error)

	// Trigger rules (core only reads and updates fire bookkeeping)
	ListActiveRules(ctx context.Context, agentID string) ([]trigger.Rule, error)
	// MarkRuleFired conditionally records a fire: it updates
	// last_fired_at/fire_count only if the rule has not fired since
	// lastSeen, so two concurrent evaluations cannot both fire inside
	// one cooldown window. Returns domain.ErrConflict when lost.
	MarkRuleFired(ctx context.Context, ruleID string, lastSeen *time.Time, firedAt time.Time) error
	CountFiresToday(ctx context.Context, ruleID string, dayStart time.Time) (int, error)

	// Cost tracking (one row per agent/day, additive updates)
	AddUsage(ctx context.Context, agentID, date string, operation string, tokens int64, costUSD float64) (*budget.CostRecord, error)
	GetCostRecord(ctx context.Context, agentID, date string) (*budget.CostRecord, error)
	SetAlertLevel(ctx context.Context, agentID, date string, level budget.AlertLevel, sentAt time.Time) error
	ListCostRecordsSince(ctx context.Context, since string) ([]budget.CostRecord, error)
	GetThresholds(ctx context.Context) (*budget.Thresholds, error)
	SaveThresholds(ctx context.Context, t budget.Thresholds) error

	// Event log (append-only)
	AppendEvent(ctx context.Context, ev *event.AgentEvent) error
	ListEventsSince(ctx context.Context, eventType event.Type, since time.Time) ([]event.AgentEvent, error)

	// Agent memory
	ListMemoryByTier(ctx context.Context, tier memory.Tier, limit int) ([]memory.Record, error)
	UpdateMemoryTier(ctx context.Context, id string, tier memory.Tier) error
	CreateMemory(ctx context.Context, rec *memory.Record) error

	// Reaction queue
	ListPendingReactions(ctx context.Context, limit int) ([]memory.Reaction, error)
	MarkReaction(ctx context.Context, id string, status memory.ReactionStatus) error

	// Missions
	GetMission(ctx context.Context, id string) (*mission.Mission, error)
	CreateMission(ctx context.Context, m *mission.Mission) error
	UpdateStepStatus(ctx context.Context, missionID, stepID string, status mission.StepStatus, output string) error
	ListStaleSteps(ctx context.Context, olderThan time.Time) ([]mission.Step, error)
	ResetStep(ctx context.Context, stepID string) error
	FailStep(ctx context.Context, stepID, reason string) error
	ListRecentMissions(ctx context.Context, since time.Time) ([]mission.Mission, error)

	// Roundtables
	CreateRoundtable(ctx context.Context, rt *roundtable.Roundtable) error
	ListStaleRoundtables(ctx context.Context, olderThan time.Time) ([]roundtable.Roundtable, error)
	ExpireRoundtable(ctx context.Context, id string) error
}

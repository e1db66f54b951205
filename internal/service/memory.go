package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vanguard-ai/vanguard/internal/domain/memory"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/port/database"
)

// Promotion thresholds. A record earns its next tier through repeated
// access, not age alone.
const (
	workingPromoteAccesses   = 3
	shortTermPromoteAccesses = 10
	shortTermPromoteAge      = 24 * time.Hour
	promotionBatchSize       = 50
	outcomeWindow            = 24 * time.Hour
)

// MemoryService maintains agent memory: promoting frequently accessed
// records up the tier ladder and distilling recent mission outcomes into
// insight records.
type MemoryService struct {
	store database.Store
	now   func() time.Time
}

// NewMemoryService creates a MemoryService.
func NewMemoryService(store database.Store) *MemoryService {
	return &MemoryService{store: store, now: time.Now}
}

// PromoteInsights moves memory records up one tier when they cross the
// access thresholds: working records accessed often enough become
// short-term; short-term records with sustained access and enough age
// become long-term. When agentID is non-empty, only that agent's records
// are considered.
func (s *MemoryService) PromoteInsights(ctx context.Context, agentID string) (run.Usage, error) {
	var usage run.Usage
	now := s.now()

	promote := func(from, to memory.Tier, eligible func(*memory.Record) bool) error {
		records, err := s.store.ListMemoryByTier(ctx, from, promotionBatchSize)
		if err != nil {
			return fmt.Errorf("list %s memory: %w", from, err)
		}
		for i := range records {
			rec := &records[i]
			if agentID != "" && rec.AgentID != agentID {
				continue
			}
			if !eligible(rec) {
				continue
			}
			if err := s.store.UpdateMemoryTier(ctx, rec.ID, to); err != nil {
				slog.Warn("memory promotion failed", "record", rec.ID, "to", to, "error", err)
				continue
			}
			usage.Actions++
		}
		return nil
	}

	if err := promote(memory.TierWorking, memory.TierShortTerm, func(r *memory.Record) bool {
		return r.AccessCount >= workingPromoteAccesses
	}); err != nil {
		return usage, err
	}
	if err := promote(memory.TierShortTerm, memory.TierLongTerm, func(r *memory.Record) bool {
		return r.AccessCount >= shortTermPromoteAccesses && now.Sub(r.CreatedAt) >= shortTermPromoteAge
	}); err != nil {
		return usage, err
	}
	return usage, nil
}

// LearnFromOutcomes distills recent mission results into short-term insight
// records, one per finished mission, noting which generals failed steps.
func (s *MemoryService) LearnFromOutcomes(ctx context.Context, agentID string) (run.Usage, error) {
	missions, err := s.store.ListRecentMissions(ctx, s.now().Add(-outcomeWindow))
	if err != nil {
		return run.Usage{}, fmt.Errorf("list recent missions: %w", err)
	}

	var usage run.Usage
	for i := range missions {
		m := &missions[i]
		if agentID != "" && m.CreatedBy != agentID {
			continue
		}
		content, done := missionInsight(m)
		if !done {
			continue
		}

		owner := m.CreatedBy
		if agentID != "" {
			owner = agentID
		}
		rec := &memory.Record{
			ID:             uuid.NewString(),
			AgentID:        owner,
			Tier:           memory.TierShortTerm,
			Kind:           "insight",
			Content:        content,
			CreatedAt:      s.now(),
			LastAccessedAt: s.now(),
		}
		if err := s.store.CreateMemory(ctx, rec); err != nil {
			slog.Warn("failed to record mission insight", "mission", m.ID, "error", err)
			continue
		}
		usage.Actions++
	}
	return usage, nil
}

// missionInsight summarizes a mission's step outcomes. Missions with any
// non-terminal step are still running and produce no insight yet.
func missionInsight(m *mission.Mission) (string, bool) {
	var completed, failed, skipped int
	failures := make(map[string]int)
	for i := range m.Steps {
		switch m.Steps[i].Status {
		case mission.StepCompleted:
			completed++
		case mission.StepFailed:
			failed++
			failures[m.Steps[i].AssignedGeneral]++
		case mission.StepSkipped:
			skipped++
		default:
			return "", false
		}
	}

	content := fmt.Sprintf("mission %q: %d/%d steps completed", m.Title, completed, len(m.Steps))
	if skipped > 0 {
		content += fmt.Sprintf(", %d skipped", skipped)
	}
	for general, n := range failures {
		content += fmt.Sprintf("; general %s failed %d step(s)", general, n)
	}
	return content, true
}

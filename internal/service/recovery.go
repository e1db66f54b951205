package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/port/database"
)

// RecoveryService sweeps for work the platform lost track of: mission steps
// stuck in progress past their deadline and roundtables idle past theirs.
type RecoveryService struct {
	store database.Store
	cfg   config.Mission
	now   func() time.Time
}

// NewRecoveryService creates a RecoveryService.
func NewRecoveryService(store database.Store, cfg config.Mission) *RecoveryService {
	return &RecoveryService{store: store, cfg: cfg, now: time.Now}
}

// RecoverStaleSteps resets mission steps stuck in progress back to pending
// so the next run picks them up, or fails them once they exhaust their
// recovery allowance.
func (s *RecoveryService) RecoverStaleSteps(ctx context.Context) (run.Usage, error) {
	steps, err := s.store.ListStaleSteps(ctx, s.now().Add(-s.cfg.StaleStepAfter))
	if err != nil {
		return run.Usage{}, fmt.Errorf("list stale steps: %w", err)
	}

	var usage run.Usage
	for i := range steps {
		step := &steps[i]
		if step.Recoveries >= s.cfg.MaxStepRecoveries {
			reason := fmt.Sprintf("stalled in progress, recovery limit reached (%d)", s.cfg.MaxStepRecoveries)
			if err := s.store.FailStep(ctx, step.ID, reason); err != nil {
				slog.Error("failed to fail stale step", "step", step.ID, "error", err)
				continue
			}
			slog.Warn("stale step failed", "step", step.ID, "general", step.AssignedGeneral, "recoveries", step.Recoveries)
		} else {
			if err := s.store.ResetStep(ctx, step.ID); err != nil {
				slog.Error("failed to reset stale step", "step", step.ID, "error", err)
				continue
			}
			slog.Info("stale step reset to pending", "step", step.ID, "general", step.AssignedGeneral)
		}
		usage.Actions++
	}
	return usage, nil
}

// RecoverStaleRoundtables expires roundtables with no activity past the
// configured idle window.
func (s *RecoveryService) RecoverStaleRoundtables(ctx context.Context) (run.Usage, error) {
	stale, err := s.store.ListStaleRoundtables(ctx, s.now().Add(-s.cfg.StaleRoundtableAfter))
	if err != nil {
		return run.Usage{}, fmt.Errorf("list stale roundtables: %w", err)
	}

	var usage run.Usage
	for i := range stale {
		rt := &stale[i]
		if err := s.store.ExpireRoundtable(ctx, rt.ID); err != nil {
			slog.Error("failed to expire roundtable", "roundtable", rt.ID, "error", err)
			continue
		}
		slog.Info("roundtable expired", "roundtable", rt.ID, "topic", rt.Topic)
		usage.Actions++
	}
	return usage, nil
}

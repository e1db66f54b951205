package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vanguard-ai/vanguard/internal/domain"
	"github.com/vanguard-ai/vanguard/internal/domain/run"
	"github.com/vanguard-ai/vanguard/internal/domain/trigger"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Runs ---

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}

	// The caller assigns the run ID so audit events emitted during the
	// cycle and the persisted row always agree.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, run_type, agent_id, started_at, status, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.RunType, nullIfEmpty(r.AgentID), r.StartedAt, r.Status, details)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) CompleteRun(ctx context.Context, r *run.Run) error {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}

	// The terminal transition is applied exactly once; a run already in
	// a terminal status is never overwritten.
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs
		 SET completed_at = $2, duration_ms = $3, actions_taken = $4,
		     tokens_used = $5, cost_usd = $6, status = $7,
		     error_message = $8, details = $9
		 WHERE id = $1 AND status = 'running'`,
		r.ID, r.CompletedAt, r.DurationMs, r.ActionsTaken,
		r.TokensUsed, r.CostUSD, r.Status, r.ErrorMessage, details)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", r.ID, domain.ErrConflict)
	}
	return nil
}

func (s *Store) ListRecentRuns(ctx context.Context, agentID string, limit int) ([]run.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_type, COALESCE(agent_id, ''), started_at, completed_at,
		        duration_ms, actions_taken, tokens_used, cost_usd, status,
		        error_message, details
		 FROM runs
		 WHERE ($1 = '' OR agent_id = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row scannable) (run.Run, error) {
	var (
		r       run.Run
		details []byte
	)
	err := row.Scan(&r.ID, &r.RunType, &r.AgentID, &r.StartedAt, &r.CompletedAt,
		&r.DurationMs, &r.ActionsTaken, &r.TokensUsed, &r.CostUSD, &r.Status,
		&r.ErrorMessage, &details)
	if err != nil {
		return run.Run{}, fmt.Errorf("scan run: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return run.Run{}, fmt.Errorf("unmarshal run details: %w", err)
		}
	}
	return r, nil
}

// --- Trigger rules ---

func (s *Store) ListActiveRules(ctx context.Context, agentID string) ([]trigger.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, name, trigger_type, conditions, action_config,
		        cooldown_minutes, max_fires_per_day, last_fired_at, fire_count, is_active
		 FROM trigger_rules
		 WHERE is_active AND ($1 = '' OR agent_id = $1)
		 ORDER BY last_fired_at ASC NULLS FIRST`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []trigger.Rule
	for rows.Next() {
		var (
			r      trigger.Rule
			action []byte
		)
		err := rows.Scan(&r.ID, &r.AgentID, &r.Name, &r.TriggerType, &r.Conditions,
			&action, &r.CooldownMinutes, &r.MaxFiresPerDay, &r.LastFiredAt,
			&r.FireCount, &r.IsActive)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := json.Unmarshal(action, &r.ActionConfig); err != nil {
			return nil, fmt.Errorf("unmarshal action config: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) MarkRuleFired(ctx context.Context, ruleID string, lastSeen *time.Time, firedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fire tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Conditional update: lost when another evaluation fired in between.
	tag, err := tx.Exec(ctx,
		`UPDATE trigger_rules
		 SET last_fired_at = $3, fire_count = fire_count + 1
		 WHERE id = $1 AND last_fired_at IS NOT DISTINCT FROM $2`,
		ruleID, lastSeen, firedAt)
	if err != nil {
		return fmt.Errorf("mark rule %s fired: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark rule %s fired: %w", ruleID, domain.ErrConflict)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO trigger_fires (rule_id, fired_at) VALUES ($1, $2)`,
		ruleID, firedAt); err != nil {
		return fmt.Errorf("record fire for rule %s: %w", ruleID, err)
	}

	return tx.Commit(ctx)
}

func (s *Store) CountFiresToday(ctx context.Context, ruleID string, dayStart time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trigger_fires WHERE rule_id = $1 AND fired_at >= $2`,
		ruleID, dayStart).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fires for rule %s: %w", ruleID, err)
	}
	return n, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vanguard-ai/vanguard/internal/domain/budget"
)

// AddUsage additively accumulates tokens and cost into the agent's row
// for the given date, creating it on first use. The single-statement
// upsert serializes concurrent read-modify-writes on the database side,
// so two simultaneous calls never lose an update.
func (s *Store) AddUsage(ctx context.Context, agentID, date string, operation string, tokens int64, costUSD float64) (*budget.CostRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO cost_tracking (agent_id, date, tokens_used, cost_usd, operation_counts)
		 VALUES ($1, $2, $3, $4, jsonb_build_object($5::text, 1))
		 ON CONFLICT (agent_id, date) DO UPDATE SET
		   tokens_used = cost_tracking.tokens_used + EXCLUDED.tokens_used,
		   cost_usd = cost_tracking.cost_usd + EXCLUDED.cost_usd,
		   operation_counts = cost_tracking.operation_counts ||
		     jsonb_build_object($5::text, COALESCE((cost_tracking.operation_counts->>$5)::int, 0) + 1)
		 RETURNING agent_id, date, tokens_used, cost_usd, alert_level, alert_sent_at, operation_counts`,
		agentID, date, tokens, costUSD, operation)

	rec, err := scanCostRecord(row)
	if err != nil {
		return nil, fmt.Errorf("add usage for %s/%s: %w", agentID, date, err)
	}
	return rec, nil
}

func (s *Store) GetCostRecord(ctx context.Context, agentID, date string) (*budget.CostRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT agent_id, date, tokens_used, cost_usd, alert_level, alert_sent_at, operation_counts
		 FROM cost_tracking WHERE agent_id = $1 AND date = $2`, agentID, date)

	rec, err := scanCostRecord(row)
	if err != nil {
		return nil, notFoundWrap(err, "get cost record %s/%s", agentID, date)
	}
	return rec, nil
}

func (s *Store) SetAlertLevel(ctx context.Context, agentID, date string, level budget.AlertLevel, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cost_tracking SET alert_level = $3, alert_sent_at = $4
		 WHERE agent_id = $1 AND date = $2`,
		agentID, date, level, sentAt)
	return execExpectOne(tag, err, "set alert level %s/%s", agentID, date)
}

func (s *Store) ListCostRecordsSince(ctx context.Context, since string) ([]budget.CostRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, date, tokens_used, cost_usd, alert_level, alert_sent_at, operation_counts
		 FROM cost_tracking WHERE date >= $1 ORDER BY date ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list cost records since %s: %w", since, err)
	}
	defer rows.Close()

	var records []budget.CostRecord
	for rows.Next() {
		rec, err := scanCostRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanCostRecord(row scannable) (*budget.CostRecord, error) {
	var (
		rec    budget.CostRecord
		counts []byte
	)
	err := row.Scan(&rec.AgentID, &rec.Date, &rec.TokensUsed, &rec.CostUSD,
		&rec.AlertLevel, &rec.AlertSentAt, &counts)
	if err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &rec.OperationCounts); err != nil {
			return nil, fmt.Errorf("unmarshal operation counts: %w", err)
		}
	}
	return &rec, nil
}

// --- Thresholds ---

func (s *Store) GetThresholds(ctx context.Context) (*budget.Thresholds, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT warning_usd, slowdown_usd, emergency_usd, effects
		 FROM cost_thresholds WHERE id = 1`)

	var (
		t       budget.Thresholds
		effects []byte
	)
	if err := row.Scan(&t.WarningUSD, &t.SlowdownUSD, &t.EmergencyUSD, &effects); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundWrap(err, "get thresholds")
		}
		return nil, fmt.Errorf("get thresholds: %w", err)
	}
	if len(effects) > 0 {
		if err := json.Unmarshal(effects, &t.Effects); err != nil {
			return nil, fmt.Errorf("unmarshal slowdown effects: %w", err)
		}
	}
	return &t, nil
}

func (s *Store) SaveThresholds(ctx context.Context, t budget.Thresholds) error {
	effects, err := json.Marshal(t.Effects)
	if err != nil {
		return fmt.Errorf("marshal slowdown effects: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cost_thresholds (id, warning_usd, slowdown_usd, emergency_usd, effects, updated_at)
		 VALUES (1, $1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE SET
		   warning_usd = EXCLUDED.warning_usd,
		   slowdown_usd = EXCLUDED.slowdown_usd,
		   emergency_usd = EXCLUDED.emergency_usd,
		   effects = EXCLUDED.effects,
		   updated_at = now()`,
		t.WarningUSD, t.SlowdownUSD, t.EmergencyUSD, effects)
	if err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	return nil
}

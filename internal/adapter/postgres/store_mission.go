package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/domain/roundtable"
)

// --- Missions ---

func (s *Store) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, priority, created_by, created_at FROM missions WHERE id = $1`, id)

	var m mission.Mission
	if err := row.Scan(&m.ID, &m.Title, &m.Priority, &m.CreatedBy, &m.CreatedAt); err != nil {
		return nil, notFoundWrap(err, "get mission %s", id)
	}

	steps, err := s.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Steps = steps
	return &m, nil
}

func (s *Store) CreateMission(ctx context.Context, m *mission.Mission) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mission tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`INSERT INTO missions (title, priority, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		m.Title, m.Priority, m.CreatedBy)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("create mission: %w", err)
	}

	for i := range m.Steps {
		st := &m.Steps[i]
		if st.Status == "" {
			st.Status = mission.StepPending
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO mission_steps (mission_id, assigned_general, status, depends_on, input)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, updated_at`,
			m.ID, st.AssignedGeneral, st.Status, orEmpty(st.DependsOn), st.Input)
		if err := row.Scan(&st.ID, &st.UpdatedAt); err != nil {
			return fmt.Errorf("create mission step: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) listSteps(ctx context.Context, missionID string) ([]mission.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assigned_general, status, depends_on, input, output,
		        started_at, updated_at, recoveries
		 FROM mission_steps WHERE mission_id = $1
		 ORDER BY updated_at ASC, id ASC`, missionID)
	if err != nil {
		return nil, fmt.Errorf("list steps for mission %s: %w", missionID, err)
	}
	defer rows.Close()

	var steps []mission.Step
	for rows.Next() {
		var st mission.Step
		err := rows.Scan(&st.ID, &st.AssignedGeneral, &st.Status, &st.DependsOn,
			&st.Input, &st.Output, &st.StartedAt, &st.UpdatedAt, &st.Recoveries)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *Store) UpdateStepStatus(ctx context.Context, missionID, stepID string, status mission.StepStatus, output string) error {
	started := "started_at"
	if status == mission.StepInProgress {
		started = "now()"
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE mission_steps
		 SET status = $3, output = $4, started_at = %s, updated_at = now()
		 WHERE id = $2 AND mission_id = $1`, started),
		missionID, stepID, status, output)
	return execExpectOne(tag, err, "update step %s status", stepID)
}

func (s *Store) ListStaleSteps(ctx context.Context, olderThan time.Time) ([]mission.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assigned_general, status, depends_on, input, output,
		        started_at, updated_at, recoveries
		 FROM mission_steps
		 WHERE status = 'in_progress' AND updated_at < $1
		 ORDER BY updated_at ASC`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale steps: %w", err)
	}
	defer rows.Close()

	var steps []mission.Step
	for rows.Next() {
		var st mission.Step
		err := rows.Scan(&st.ID, &st.AssignedGeneral, &st.Status, &st.DependsOn,
			&st.Input, &st.Output, &st.StartedAt, &st.UpdatedAt, &st.Recoveries)
		if err != nil {
			return nil, fmt.Errorf("scan stale step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *Store) ResetStep(ctx context.Context, stepID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mission_steps
		 SET status = 'pending', recoveries = recoveries + 1, updated_at = now()
		 WHERE id = $1`, stepID)
	return execExpectOne(tag, err, "reset step %s", stepID)
}

func (s *Store) FailStep(ctx context.Context, stepID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mission_steps
		 SET status = 'failed', output = $2, updated_at = now()
		 WHERE id = $1`, stepID, reason)
	return execExpectOne(tag, err, "fail step %s", stepID)
}

func (s *Store) ListRecentMissions(ctx context.Context, since time.Time) ([]mission.Mission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, priority, created_by, created_at
		 FROM missions WHERE created_at >= $1
		 ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list recent missions: %w", err)
	}
	defer rows.Close()

	var missions []mission.Mission
	for rows.Next() {
		var m mission.Mission
		if err := rows.Scan(&m.ID, &m.Title, &m.Priority, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range missions {
		steps, err := s.listSteps(ctx, missions[i].ID)
		if err != nil {
			return nil, err
		}
		missions[i].Steps = steps
	}
	return missions, nil
}

// --- Roundtables ---

func (s *Store) CreateRoundtable(ctx context.Context, rt *roundtable.Roundtable) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO roundtables (topic, status, participants)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		rt.Topic, rt.Status, orEmpty(rt.Participants))
	if err := row.Scan(&rt.ID, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return fmt.Errorf("create roundtable: %w", err)
	}
	return nil
}

func (s *Store) ListStaleRoundtables(ctx context.Context, olderThan time.Time) ([]roundtable.Roundtable, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, status, participants, created_at, updated_at
		 FROM roundtables
		 WHERE status = 'active' AND updated_at < $1
		 ORDER BY updated_at ASC`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale roundtables: %w", err)
	}
	defer rows.Close()

	var tables []roundtable.Roundtable
	for rows.Next() {
		var rt roundtable.Roundtable
		err := rows.Scan(&rt.ID, &rt.Topic, &rt.Status, &rt.Participants,
			&rt.CreatedAt, &rt.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan roundtable: %w", err)
		}
		tables = append(tables, rt)
	}
	return tables, rows.Err()
}

func (s *Store) ExpireRoundtable(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roundtables SET status = 'expired', updated_at = now() WHERE id = $1`, id)
	return execExpectOne(tag, err, "expire roundtable %s", id)
}

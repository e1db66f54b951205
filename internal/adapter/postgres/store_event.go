package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain/event"
	"github.com/vanguard-ai/vanguard/internal/domain/memory"
)

// --- Event log ---

func (s *Store) AppendEvent(ctx context.Context, ev *event.AgentEvent) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_events (agent_id, type, payload, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		nullIfEmpty(ev.AgentID), ev.Type, ev.Payload, ev.CreatedAt)
	if err := row.Scan(&ev.ID); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEventsSince(ctx context.Context, eventType event.Type, since time.Time) ([]event.AgentEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(agent_id, ''), type, payload, created_at
		 FROM agent_events
		 WHERE ($1 = '' OR type = $1) AND created_at >= $2
		 ORDER BY created_at ASC`, string(eventType), since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.AgentEvent
	for rows.Next() {
		var ev event.AgentEvent
		if err := rows.Scan(&ev.ID, &ev.AgentID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Agent memory ---

func (s *Store) ListMemoryByTier(ctx context.Context, tier memory.Tier, limit int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, tier, kind, content, access_count, created_at, last_accessed_at
		 FROM agent_memory WHERE tier = $1
		 ORDER BY last_accessed_at ASC
		 LIMIT $2`, tier, limit)
	if err != nil {
		return nil, fmt.Errorf("list memory tier %s: %w", tier, err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var rec memory.Record
		err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Tier, &rec.Kind, &rec.Content,
			&rec.AccessCount, &rec.CreatedAt, &rec.LastAccessedAt)
		if err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) UpdateMemoryTier(ctx context.Context, id string, tier memory.Tier) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_memory SET tier = $2 WHERE id = $1`, id, tier)
	return execExpectOne(tag, err, "update memory %s tier", id)
}

func (s *Store) CreateMemory(ctx context.Context, rec *memory.Record) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_memory (agent_id, tier, kind, content, access_count, created_at, last_accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING id`,
		rec.AgentID, rec.Tier, rec.Kind, rec.Content, rec.AccessCount, rec.CreatedAt)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// --- Reaction queue ---

func (s *Store) ListPendingReactions(ctx context.Context, limit int) ([]memory.Reaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, source_id, action_type, params, status, created_at
		 FROM reaction_queue WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reactions: %w", err)
	}
	defer rows.Close()

	var reactions []memory.Reaction
	for rows.Next() {
		var rc memory.Reaction
		err := rows.Scan(&rc.ID, &rc.AgentID, &rc.SourceID, &rc.ActionType,
			&rc.Params, &rc.Status, &rc.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, rc)
	}
	return reactions, rows.Err()
}

func (s *Store) MarkReaction(ctx context.Context, id string, status memory.ReactionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reaction_queue SET status = $2 WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "mark reaction %s", id)
}

// Package spawn implements the executor port over NATS request/reply to
// the external spawn host, where generals actually perform their work.
package spawn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vanguard-ai/vanguard/internal/port/executor"
	"github.com/vanguard-ai/vanguard/internal/port/messagequeue"
	"github.com/vanguard-ai/vanguard/internal/resilience"
)

// Executor submits work to the spawn host and reports mission progress.
type Executor struct {
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	timeout time.Duration
}

// New creates a spawn executor. The breaker guards the request/reply
// path; an open circuit surfaces as a failed attempt to the caller.
func New(queue messagequeue.Queue, breaker *resilience.Breaker, timeout time.Duration) *Executor {
	return &Executor{queue: queue, breaker: breaker, timeout: timeout}
}

// executeReply is the spawn host's response envelope.
type executeReply struct {
	Output     string `json:"output"`
	TokensUsed int64  `json:"tokens_used"`
	Error      string `json:"error,omitempty"`
}

// Submit hands a unit of work to the general serving the given role and
// waits for the result.
func (e *Executor) Submit(ctx context.Context, sub executor.Submission) (*executor.Result, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	subject := fmt.Sprintf(messagequeue.SubjectGeneralExecute, sub.Role)

	var raw []byte
	err = e.breaker.Execute(ctx, func() error {
		var reqErr error
		raw, reqErr = e.queue.Request(ctx, subject, data, e.timeout)
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("submit to %s: %w", sub.Role, err)
	}

	var reply executeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", sub.Role, err)
	}
	if reply.Error == "unknown_general" {
		return nil, fmt.Errorf("submit to %s: %w", sub.Role, executor.ErrUnknownGeneral)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("general %s: %s", sub.Role, reply.Error)
	}

	return &executor.Result{Output: reply.Output, TokensUsed: reply.TokensUsed}, nil
}

// ReportProgress publishes a step status change for external consumers.
func (e *Executor) ReportProgress(ctx context.Context, missionID, stepID, status, output string) error {
	data, err := json.Marshal(map[string]string{
		"mission_id": missionID,
		"step_id":    stepID,
		"status":     status,
		"output":     output,
	})
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return e.queue.Publish(ctx, messagequeue.SubjectStepProgress, data)
}

// ReportCompletion publishes the final mission result.
func (e *Executor) ReportCompletion(ctx context.Context, missionID string, summary string, payload any) error {
	data, err := json.Marshal(map[string]any{
		"mission_id": missionID,
		"summary":    summary,
		"result":     payload,
	})
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	return e.queue.Publish(ctx, messagequeue.SubjectMissionDone, data)
}

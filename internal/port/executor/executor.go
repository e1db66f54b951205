// Package executor defines the port for the external "spawn" host that
// actually performs a general's unit of work. The core is agnostic to how
// the work is carried out.
package executor

import (
	"context"
	"errors"
)

// ErrUnknownGeneral is returned when the spawn host has no general
// registered for the requested role.
var ErrUnknownGeneral = errors.New("executor: unknown general")

// Submission is one unit of work handed to a general.
type Submission struct {
	Role            string `json:"role"`
	TaskDescription string `json:"task_description"`
	Context         string `json:"context"` // summarized prior-step outputs
}

// Result is the outcome returned by the spawn host.
type Result struct {
	Output     string `json:"output"`
	TokensUsed int64  `json:"tokens_used"`
}

// Executor is the port interface for remote work execution and
// mission progress reporting.
type Executor interface {
	// Submit hands a unit of work to the named general and waits for
	// the result.
	Submit(ctx context.Context, sub Submission) (*Result, error)

	// ReportProgress notifies the collaborator of a step status change.
	ReportProgress(ctx context.Context, missionID, stepID, status, output string) error

	// ReportCompletion delivers the final mission result and summary.
	ReportCompletion(ctx context.Context, missionID string, summary string, payload any) error
}

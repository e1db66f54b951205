// Package dryrun implements the executor port without side effects.
// Selected by configuration for rehearsal runs; the mission runner itself
// never branches on dry-run mode.
package dryrun

import (
	"context"
	"fmt"

	"github.com/vanguard-ai/vanguard/internal/port/executor"
)

// Executor synthesizes results locally and swallows all reports.
type Executor struct{}

// New creates a dry-run executor.
func New() *Executor {
	return &Executor{}
}

// Submit echoes a synthesized result for the submission.
func (e *Executor) Submit(_ context.Context, sub executor.Submission) (*executor.Result, error) {
	return &executor.Result{
		Output: fmt.Sprintf("[dry-run] %s would execute: %s", sub.Role, sub.TaskDescription),
	}, nil
}

// ReportProgress is a no-op.
func (e *Executor) ReportProgress(context.Context, string, string, string, string) error {
	return nil
}

// ReportCompletion is a no-op.
func (e *Executor) ReportCompletion(context.Context, string, string, any) error {
	return nil
}

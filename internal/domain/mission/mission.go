// Package mission defines the Mission domain entity: a titled set of steps
// forming a dependency DAG, executed on demand by the mission runner.
package mission

import "time"

// Priority ranks a mission for cost estimation and budget policy.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// StepStatus represents the lifecycle state of an individual step.
// A step moves to in_progress only when every dependency is completed.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// IsTerminal returns true if the step is in a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// Status is the terminal state of a whole mission run.
type Status string

const (
	StatusCompleted Status = "completed" // every step completed
	StatusPartial   Status = "partial"   // at least one step completed, not all
	StatusFailed    Status = "failed"    // no step completed
)

// Mission is a multi-step unit of work. Structure is immutable during a
// run; only step status mutates.
type Mission struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Priority  Priority  `json:"priority"`
	CreatedBy string    `json:"created_by"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Step is one unit of work within a mission, assigned to a general.
type Step struct {
	ID              string     `json:"id"`
	AssignedGeneral string     `json:"assigned_general"`
	Status          StepStatus `json:"status"`
	DependsOn       []string   `json:"depends_on,omitempty"`
	Input           string     `json:"input,omitempty"`
	Output          string     `json:"output,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Recoveries      int        `json:"recoveries"`
}

// StepResult records the outcome of executing one step.
type StepResult struct {
	StepID     string     `json:"step_id"`
	GeneralID  string     `json:"general_id"` // possibly a fallback general
	Status     StepStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	Retries    int        `json:"retries"`
	DurationMs int64      `json:"duration_ms"`
}

// Result is the outcome of one mission run.
type Result struct {
	MissionID    string       `json:"mission_id"`
	Status       Status       `json:"status"`
	Summary      string       `json:"summary"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	StepResults  []StepResult `json:"step_results"`
}

// Overrides tunes a single mission run. Zero values fall back to the
// configured defaults.
type Overrides struct {
	MaxRetries       int               `json:"max_retries,omitempty"`
	RetryDelayMs     int               `json:"retry_delay_ms,omitempty"`
	FallbackGenerals map[string]string `json:"fallback_generals,omitempty"`
	DryRun           bool              `json:"dry_run,omitempty"`
}

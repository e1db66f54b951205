package ws

// Event type constants for messages broadcast to clients.
const (
	EventRunStatus     = "run.status"
	EventMissionStatus = "mission.status"
	EventStepStatus    = "mission.step_status"
	EventBudgetAlert   = "budget.alert"
	EventTriggerFired  = "trigger.fired"
)

// RunStatusEvent reports a heartbeat run lifecycle change.
type RunStatusEvent struct {
	RunID   string  `json:"run_id"`
	AgentID string  `json:"agent_id,omitempty"`
	Status  string  `json:"status"`
	CostUSD float64 `json:"cost_usd"`
}

// MissionStatusEvent reports a mission terminal status.
type MissionStatusEvent struct {
	MissionID string  `json:"mission_id"`
	Status    string  `json:"status"`
	CostUSD   float64 `json:"cost_usd"`
}

// StepStatusEvent reports one step's status change.
type StepStatusEvent struct {
	MissionID string `json:"mission_id"`
	StepID    string `json:"step_id"`
	General   string `json:"general"`
	Status    string `json:"status"`
}

// BudgetAlertEvent reports an agent crossing an alert tier.
type BudgetAlertEvent struct {
	AgentID string  `json:"agent_id"`
	Level   string  `json:"level"`
	CostUSD float64 `json:"cost_usd"`
}

// TriggerFiredEvent reports a rule firing.
type TriggerFiredEvent struct {
	RuleID  string `json:"rule_id"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Action  string `json:"action"`
}

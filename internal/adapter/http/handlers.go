package http

import (
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vanguard-ai/vanguard/internal/domain/budget"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
	"github.com/vanguard-ai/vanguard/internal/port/messagequeue"
	"github.com/vanguard-ai/vanguard/internal/service"
)

// Handlers bundles the services the HTTP API exposes.
type Handlers struct {
	heartbeat *service.HeartbeatService
	missions  *service.MissionService
	budget    *service.BudgetService
	queue     messagequeue.Queue
	pool      *pgxpool.Pool
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(heartbeat *service.HeartbeatService, missions *service.MissionService, budgetSvc *service.BudgetService, queue messagequeue.Queue, pool *pgxpool.Pool) *Handlers {
	return &Handlers{
		heartbeat: heartbeat,
		missions:  missions,
		budget:    budgetSvc,
		queue:     queue,
		pool:      pool,
	}
}

type runHeartbeatRequest struct {
	AgentID string `json:"agent_id,omitempty"`
}

// RunHeartbeat executes one maintenance cycle synchronously and returns its
// audit record.
func (h *Handlers) RunHeartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[runHeartbeatRequest](w, r)
	if !ok {
		return
	}

	run, err := h.heartbeat.RunHeartbeat(r.Context(), req.AgentID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type runMissionRequest struct {
	MissionID string            `json:"mission_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Priority  mission.Priority  `json:"priority,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	Steps     []missionStepSpec `json:"steps,omitempty"`
	Overrides mission.Overrides `json:"overrides"`
}

type missionStepSpec struct {
	ID        string   `json:"id,omitempty"`
	General   string   `json:"general"`
	Input     string   `json:"input,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// RunMission runs an existing mission by ID, or creates and runs an inline
// one. The creating agent's budget gates the run: an agent over its cap
// gets a 403 instead of a mission.
func (h *Handlers) RunMission(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[runMissionRequest](w, r)
	if !ok {
		return
	}

	var m *mission.Mission
	var err error
	switch {
	case req.MissionID != "":
		m, err = h.missions.GetMission(r.Context(), req.MissionID)
		if err != nil {
			writeDomainError(w, err, "mission not found")
			return
		}
	case len(req.Steps) > 0:
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		if req.Priority == "" {
			req.Priority = mission.PriorityMedium
		}
		steps := make([]mission.Step, 0, len(req.Steps))
		for _, spec := range req.Steps {
			if spec.General == "" {
				writeError(w, http.StatusBadRequest, "every step needs a general")
				return
			}
			steps = append(steps, mission.Step{
				ID:              spec.ID,
				AssignedGeneral: spec.General,
				Input:           spec.Input,
				DependsOn:       spec.DependsOn,
			})
		}
		m, err = h.missions.CreateMission(r.Context(), req.Title, req.Priority, req.CreatedBy, steps)
		if err != nil {
			writeDomainError(w, err, "mission not found")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "mission_id or steps is required")
		return
	}

	if m.CreatedBy != "" && !req.Overrides.DryRun {
		blocked, err := h.budget.ShouldBlockOperation(r.Context(), m.CreatedBy, budget.OpConversation, missionPriority(m.Priority))
		if err != nil {
			writeInternalError(w, err)
			return
		}
		if blocked {
			writeError(w, http.StatusForbidden, "operation blocked by budget policy")
			return
		}
	}

	result, err := h.missions.RunMission(r.Context(), m, req.Overrides)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CostSummary returns today's spend and projection for one agent.
func (h *Handlers) CostSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.budget.DailySummary(r.Context(), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, err, "agent has no cost record")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CostStats returns system-wide spend aggregation over a trailing window.
func (h *Handlers) CostStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = n
	}

	stats, err := h.budget.SystemStats(r.Context(), days)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type slowdownResponse struct {
	Active  bool                    `json:"active"`
	Effects *budget.SlowdownEffects `json:"effects,omitempty"`
}

// Slowdown returns the throttling effects active for an agent, if any.
func (h *Handlers) Slowdown(w http.ResponseWriter, r *http.Request) {
	effects, err := h.budget.SlowdownEffects(r.Context(), urlParam(r, "agentID"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slowdownResponse{Active: effects != nil, Effects: effects})
}

// GetThresholds returns the active cost thresholds.
func (h *Handlers) GetThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.budget.Thresholds())
}

// UpdateThresholds hot-reloads the cost thresholds.
func (h *Handlers) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	t, ok := readJSON[budget.Thresholds](w, r)
	if !ok {
		return
	}
	if err := h.budget.UpdateThresholds(r.Context(), t); err != nil {
		writeDomainError(w, err, "thresholds")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListRuns returns recent run audit records.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	runs, err := h.heartbeat.RecentRuns(r.Context(), r.URL.Query().Get("agent_id"), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

// Health reports liveness of the service and its backing stores.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", Queue: "ok"}
	status := http.StatusOK

	if err := h.pool.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if !h.queue.IsConnected() {
		resp.Status = "degraded"
		resp.Queue = "disconnected"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// missionPriority maps a mission priority onto the budget policy's scale.
func missionPriority(p mission.Priority) budget.Priority {
	switch p {
	case mission.PriorityCritical, mission.PriorityHigh:
		return budget.PriorityHigh
	case mission.PriorityLow:
		return budget.PriorityLow
	default:
		return budget.PriorityMedium
	}
}

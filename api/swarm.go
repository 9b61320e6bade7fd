package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/triage"
)

// SwarmHandler serves the operator-facing endpoints: status, mode
// toggle, delegation, and alerts.
type SwarmHandler struct {
	delegator *swarm.Delegator
	logger    *zap.Logger
}

// DelegateRequest asks the swarm to run one task.
type DelegateRequest struct {
	// Description is the free-form task text. When Type is empty it is
	// also fed through triage to classify the task.
	Description string `json:"description"`
	// Type optionally pins the task type, bypassing triage.
	Type swarm.TaskType `json:"type,omitempty"`
	// Complexity optionally pins the tier, bypassing triage.
	Complexity *swarm.Complexity `json:"complexity,omitempty"`
	// Context is passed through to the winning worker.
	Context map[string]any `json:"context,omitempty"`
}

// DelegateResponse reports a delegation outcome.
type DelegateResponse struct {
	Delegated bool           `json:"delegated"`
	Payload   any            `json:"payload,omitempty"`
	Type      swarm.TaskType `json:"type,omitempty"`
}

// ModeRequest toggles swarm status visibility.
type ModeRequest struct {
	Visible bool `json:"visible"`
}

// NewSwarmHandler creates the operator handler.
func NewSwarmHandler(delegator *swarm.Delegator, logger *zap.Logger) *SwarmHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwarmHandler{
		delegator: delegator,
		logger:    logger.With(zap.String("component", "swarm_handler")),
	}
}

// HandleStatus serves GET /api/v1/swarm/status. The response respects
// the visibility gate: a hidden swarm reports visible=false and no
// snapshot.
func (h *SwarmHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, visible := h.delegator.SwarmStatus()
	WriteSuccess(w, map[string]any{
		"visible": visible,
		"status":  status,
		"report":  triage.FormatStatus(status),
	})
}

// HandleMode serves POST /api/v1/swarm/mode.
func (h *SwarmHandler) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	h.delegator.ToggleSwarmMode(req.Visible)
	WriteSuccess(w, map[string]any{"visible": req.Visible})
}

// HandleDelegate serves POST /api/v1/swarm/delegate. Requests that
// triage deems too simple are answered with delegated=false rather
// than an error; the caller is expected to handle the task locally.
func (h *SwarmHandler) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	var req DelegateRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if req.Description == "" {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "description is required", h.logger)
		return
	}

	taskType := req.Type
	complexity := swarm.ComplexityComplex
	if req.Complexity != nil {
		complexity = *req.Complexity
	}
	if taskType == "" {
		verdict, ok := triage.Analyze(req.Description)
		if !ok {
			WriteSuccess(w, DelegateResponse{Delegated: false})
			return
		}
		taskType = verdict.Type
		if req.Complexity == nil {
			complexity = verdict.Complexity
		}
	}
	if !taskType.Known() {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "unknown task type", h.logger)
		return
	}
	if !h.delegator.ShouldDelegate(complexity) {
		WriteSuccess(w, DelegateResponse{Delegated: false, Type: taskType})
		return
	}

	start := time.Now()
	payload, ok := h.delegator.DelegateTask(r.Context(), req.Description, taskType, complexity, req.Context)
	h.logger.Info("delegation request served",
		zap.String("task_type", string(taskType)),
		zap.Bool("delegated", ok),
		zap.Duration("elapsed", time.Since(start)),
	)
	WriteSuccess(w, DelegateResponse{Delegated: ok, Payload: payload, Type: taskType})
}

// HandleAlerts serves GET /api/v1/swarm/alerts, draining the pending
// alert queue.
func (h *SwarmHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.delegator.CheckAlerts()
	WriteSuccess(w, map[string]any{
		"alerts": alerts,
		"report": triage.FormatAlerts(alerts),
	})
}

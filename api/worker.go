package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
)

// WorkerHandler serves the worker-facing endpoints: registration,
// heartbeats, bids, results, and alerts.
type WorkerHandler struct {
	bus    *swarm.Bus
	logger *zap.Logger
}

// NewWorkerHandler creates the worker handler.
func NewWorkerHandler(bus *swarm.Bus, logger *zap.Logger) *WorkerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerHandler{
		bus:    bus,
		logger: logger.With(zap.String("component", "worker_handler")),
	}
}

// HandleRegister serves POST /api/v1/workers. A zero worker id is
// assigned server-side so workers can register without minting UUIDs.
func (h *WorkerHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reg swarm.Registration
	if !DecodeJSONBody(w, r, &reg, h.logger) {
		return
	}
	if reg.WorkerName == "" {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "worker_name is required", h.logger)
		return
	}
	if len(reg.Specializations) == 0 {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "at least one specialization is required", h.logger)
		return
	}
	for _, t := range reg.Specializations {
		if !t.Known() {
			WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "unknown specialization", h.logger)
			return
		}
	}
	if reg.WorkerID == uuid.Nil {
		reg.WorkerID = uuid.New()
	}
	if reg.Timestamp.IsZero() {
		reg.Timestamp = time.Now()
	}

	h.bus.RegisterWorker(reg)
	WriteSuccess(w, map[string]any{"worker_id": reg.WorkerID})
}

// HandleDeregister serves DELETE /api/v1/workers/{id}. Deregistering
// an unknown worker succeeds; the end state is the same.
func (h *WorkerHandler) HandleDeregister(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	h.bus.DeregisterWorker(id)
	WriteSuccess(w, map[string]any{"worker_id": id})
}

// HandleHeartbeat serves POST /api/v1/workers/{id}/heartbeat. Unknown
// worker ids get 404 so a pruned worker knows to re-register.
func (h *WorkerHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	var hb swarm.Heartbeat
	if !DecodeJSONBody(w, r, &hb, h.logger) {
		return
	}
	hb.WorkerID = id
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}
	if !h.bus.UpdateHeartbeat(hb) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "worker not registered", h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"worker_id": id})
}

// HandleBid serves POST /api/v1/workers/{id}/bids. The accepted flag
// tells the worker whether its bid made the auction window.
func (h *WorkerHandler) HandleBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	var bid swarm.Bid
	if !DecodeJSONBody(w, r, &bid, h.logger) {
		return
	}
	if bid.TaskID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "task_id is required", h.logger)
		return
	}
	bid.WorkerID = id
	if bid.Timestamp.IsZero() {
		bid.Timestamp = time.Now()
	}
	accepted := h.bus.SubmitBid(bid)
	WriteSuccess(w, map[string]any{"accepted": accepted})
}

// HandleResult serves POST /api/v1/workers/{id}/results.
func (h *WorkerHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	var res swarm.Result
	if !DecodeJSONBody(w, r, &res, h.logger) {
		return
	}
	if res.TaskID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "task_id is required", h.logger)
		return
	}
	res.WorkerID = id
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	h.bus.SubmitResult(res)
	WriteSuccess(w, map[string]any{"task_id": res.TaskID})
}

// HandleAlert serves POST /api/v1/workers/{id}/alerts.
func (h *WorkerHandler) HandleAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	var alert swarm.Alert
	if !DecodeJSONBody(w, r, &alert, h.logger) {
		return
	}
	if alert.Description == "" {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "description is required", h.logger)
		return
	}
	alert.WorkerID = id
	if alert.AlertID == uuid.Nil {
		alert.AlertID = uuid.New()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	h.bus.SubmitAlert(alert)
	WriteSuccess(w, map[string]any{"alert_id": alert.AlertID})
}

// pathUUID extracts the {id} path value. On failure it writes the
// error response and returns false.
func pathUUID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid worker id", logger)
		return uuid.Nil, false
	}
	return id, true
}

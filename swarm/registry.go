package swarm

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkerRecord is the registry's view of one worker. Snapshot copies
// are handed out; callers never see the live record.
type WorkerRecord struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Specializations    []TaskType   `json:"specializations"`
	MaxConcurrentTasks int          `json:"max_concurrent_tasks"`
	Capabilities       []string     `json:"capabilities,omitempty"`
	Status             WorkerStatus `json:"status"`
	CurrentLoad        float64      `json:"current_load"`
	ActiveTasks        int          `json:"active_tasks"`
	LastHeartbeat      time.Time    `json:"last_heartbeat"`
	RegisteredAt       time.Time    `json:"registered_at"`
}

func (w *WorkerRecord) clone() WorkerRecord {
	c := *w
	c.Specializations = slices.Clone(w.Specializations)
	c.Capabilities = slices.Clone(w.Capabilities)
	return c
}

// Registry tracks registered workers: their specializations, load,
// status, and liveness. All access is serialized through one lock.
type Registry struct {
	mu      sync.RWMutex
	workers map[uuid.UUID]*WorkerRecord

	logger  *zap.Logger
	metrics Metrics
}

// NewRegistry creates an empty worker registry.
func NewRegistry(logger *zap.Logger, m Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Registry{
		workers: make(map[uuid.UUID]*WorkerRecord),
		logger:  logger.With(zap.String("component", "worker_registry")),
		metrics: m,
	}
}

// Register adds a worker. Registration is idempotent by id: a repeat
// registration overwrites the previous record. Workers start Idle with
// zero load.
func (r *Registry) Register(reg Registration) {
	now := time.Now()
	record := &WorkerRecord{
		ID:                 reg.WorkerID,
		Name:               reg.WorkerName,
		Specializations:    slices.Clone(reg.Specializations),
		MaxConcurrentTasks: reg.MaxConcurrentTasks,
		Capabilities:       slices.Clone(reg.Capabilities),
		Status:             StatusIdle,
		LastHeartbeat:      now,
		RegisteredAt:       now,
	}

	r.mu.Lock()
	r.workers[reg.WorkerID] = record
	total := len(r.workers)
	r.mu.Unlock()

	r.logger.Info("worker registered",
		zap.String("worker_id", reg.WorkerID.String()),
		zap.String("worker_name", reg.WorkerName),
		zap.Int("specializations", len(reg.Specializations)),
	)
	r.metrics.RecordWorkerCount(total)
}

// Deregister removes a worker. Removing an unknown id is a no-op.
// Returns true if a worker was removed.
func (r *Registry) Deregister(id uuid.UUID) bool {
	r.mu.Lock()
	record, ok := r.workers[id]
	if ok {
		delete(r.workers, id)
	}
	total := len(r.workers)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.logger.Info("worker deregistered",
		zap.String("worker_id", id.String()),
		zap.String("worker_name", record.Name),
	)
	r.metrics.RecordWorkerCount(total)
	return true
}

// Heartbeat refreshes a worker's status, load, active-task count, and
// liveness timestamp. Heartbeats from unknown ids are silently ignored;
// a worker that was pruned must re-register, not resurrect itself
// through a late heartbeat. Returns true if the worker was known.
func (r *Registry) Heartbeat(hb Heartbeat) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.workers[hb.WorkerID]
	if !ok {
		r.logger.Debug("heartbeat from unknown worker ignored",
			zap.String("worker_id", hb.WorkerID.String()),
		)
		return false
	}
	record.Status = hb.Status
	record.CurrentLoad = clamp01(hb.CurrentLoad)
	record.ActiveTasks = hb.ActiveTasks
	record.LastHeartbeat = time.Now()
	return true
}

// BestWorkerFor returns the id of the least-loaded non-offline worker
// whose specializations include taskType. Equal loads break by
// ascending worker id so the choice is deterministic. The second return
// is false when no worker is eligible.
func (r *Registry) BestWorkerFor(taskType TaskType) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  *WorkerRecord
		found bool
	)
	for _, w := range r.workers {
		if w.Status == StatusOffline || !slices.Contains(w.Specializations, taskType) {
			continue
		}
		if !found {
			best, found = w, true
			continue
		}
		if w.CurrentLoad < best.CurrentLoad ||
			(w.CurrentLoad == best.CurrentLoad && w.ID.String() < best.ID.String()) {
			best = w
		}
	}
	if !found {
		return uuid.Nil, false
	}
	return best.ID, true
}

// Get returns a copy of one worker's record.
func (r *Registry) Get(id uuid.UUID) (WorkerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[id]
	if !ok {
		return WorkerRecord{}, false
	}
	return w.clone(), true
}

// Snapshot returns copies of all worker records, sorted by id for a
// stable order.
func (r *Registry) Snapshot() []WorkerRecord {
	r.mu.RLock()
	out := make([]WorkerRecord, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b WorkerRecord) int {
		switch {
		case a.ID.String() < b.ID.String():
			return -1
		case a.ID.String() > b.ID.String():
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// ActiveCount returns the number of workers not marked offline.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.workers {
		if w.Status != StatusOffline {
			n++
		}
	}
	return n
}

// PruneStale removes every worker whose last heartbeat is older than
// timeout and returns copies of the removed records. Removal is total:
// a stale worker disappears from the registry entirely. In-flight
// assignments are not cancelled; an orphaned task is caught by the
// delegation result timeout instead.
func (r *Registry) PruneStale(timeout time.Duration) []WorkerRecord {
	now := time.Now()

	r.mu.Lock()
	var removed []WorkerRecord
	for id, w := range r.workers {
		if now.Sub(w.LastHeartbeat) > timeout {
			removed = append(removed, w.clone())
			delete(r.workers, id)
		}
	}
	total := len(r.workers)
	r.mu.Unlock()

	for _, w := range removed {
		r.logger.Warn("pruned stale worker",
			zap.String("worker_id", w.ID.String()),
			zap.String("worker_name", w.Name),
			zap.Duration("heartbeat_age", now.Sub(w.LastHeartbeat)),
		)
	}
	if len(removed) > 0 {
		r.metrics.RecordWorkersPruned(len(removed))
		r.metrics.RecordWorkerCount(total)
	}
	return removed
}

package swarm

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger tracks which worker owns each active task and queues results
// and alerts until the orchestrator collects them. Queues are drained
// atomically: each enqueued item surfaces in exactly one drain.
//
// A delegation that is actively waiting registers a keyed watcher for
// its task id; a matching result is then handed straight to the watcher
// instead of the queue, so concurrent delegations never steal each
// other's results from a shared drain.
type Ledger struct {
	mu             sync.Mutex
	active         map[uuid.UUID]uuid.UUID // task id -> worker id
	pendingResults []Result
	pendingAlerts  []Alert
	watchers       map[uuid.UUID]chan Result

	logger  *zap.Logger
	metrics Metrics
}

// NewLedger creates an empty task ledger.
func NewLedger(logger *zap.Logger, m Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Ledger{
		active:   make(map[uuid.UUID]uuid.UUID),
		watchers: make(map[uuid.UUID]chan Result),
		logger:   logger.With(zap.String("component", "task_ledger")),
		metrics:  m,
	}
}

// RecordAssignment maps an active task to its winning worker.
func (l *Ledger) RecordAssignment(taskID, workerID uuid.UUID) {
	l.mu.Lock()
	l.active[taskID] = workerID
	l.mu.Unlock()
}

// WorkerFor returns the worker currently assigned to taskID.
func (l *Ledger) WorkerFor(taskID uuid.UUID) (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	workerID, ok := l.active[taskID]
	return workerID, ok
}

// ActiveCount returns the number of tasks with a live assignment.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// SubmitResult clears the task's active assignment (if any) and routes
// the result: to the task's registered watcher when one is waiting,
// otherwise onto the pending-results queue.
func (l *Ledger) SubmitResult(res Result) {
	l.mu.Lock()
	delete(l.active, res.TaskID)
	if ch, ok := l.watchers[res.TaskID]; ok {
		delete(l.watchers, res.TaskID)
		ch <- res // buffered, single-use; never blocks
	} else {
		l.pendingResults = append(l.pendingResults, res)
	}
	l.mu.Unlock()

	l.logger.Info("task result received",
		zap.String("task_id", res.TaskID.String()),
		zap.String("worker_name", res.WorkerName),
		zap.Bool("success", res.Success),
	)
	l.metrics.RecordResult(res.Success)
}

// SubmitAlert queues an anomaly alert. Alerts need no task linkage.
func (l *Ledger) SubmitAlert(alert Alert) {
	l.mu.Lock()
	l.pendingAlerts = append(l.pendingAlerts, alert)
	l.mu.Unlock()

	l.logger.Info("anomaly alert received",
		zap.String("alert_id", alert.AlertID.String()),
		zap.String("worker_name", alert.WorkerName),
		zap.String("severity", alert.Severity.String()),
		zap.String("category", alert.Category),
	)
	l.metrics.RecordAlert(alert.Severity)
}

// DrainPendingResults atomically empties the result queue and returns
// its former contents.
func (l *Ledger) DrainPendingResults() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pendingResults
	l.pendingResults = nil
	return out
}

// DrainPendingAlerts atomically empties the alert queue and returns its
// former contents.
func (l *Ledger) DrainPendingAlerts() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pendingAlerts
	l.pendingAlerts = nil
	return out
}

// WatchResult registers interest in the result for taskID and returns a
// channel that receives it. If a matching result is already queued it
// is claimed immediately. Only one watcher per task id exists at a
// time; a repeat call returns the existing channel. Callers that stop
// waiting must call Unwatch.
func (l *Ledger) WatchResult(taskID uuid.UUID) <-chan Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ch, ok := l.watchers[taskID]; ok {
		return ch
	}

	ch := make(chan Result, 1)

	// A result submitted before the watch was registered may already
	// be sitting in the queue.
	for i, res := range l.pendingResults {
		if res.TaskID == taskID {
			l.pendingResults = append(l.pendingResults[:i], l.pendingResults[i+1:]...)
			ch <- res
			return ch
		}
	}

	l.watchers[taskID] = ch
	return ch
}

// Unwatch drops the watcher for taskID. A result arriving afterwards
// goes to the pending queue as usual.
func (l *Ledger) Unwatch(taskID uuid.UUID) {
	l.mu.Lock()
	delete(l.watchers, taskID)
	l.mu.Unlock()
}

// PendingResultCount returns the queued, undrained result count.
func (l *Ledger) PendingResultCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingResults)
}

// PendingAlertCount returns the queued, undrained alert count.
func (l *Ledger) PendingAlertCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingAlerts)
}

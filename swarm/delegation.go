package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// delegationRequest carries one task into the background auction loop
// together with a single-use response slot. The slot is a buffered
// channel: the loop's send never blocks, so a caller that abandons the
// request leaks nothing. The auction still runs to completion and its
// result is simply discarded.
type delegationRequest struct {
	task     TaskAnnouncement
	response chan *Result
}

func (r delegationRequest) respond(res *Result) {
	select {
	case r.response <- res:
	default:
		// Slot already used; only possible if respond is called twice.
	}
}

// Delegator is the orchestrator-facing facade over the bus. One call
// to DelegateTask runs announce → auction → assignment → await-result
// and collapses every failure mode into an absent result, so the
// caller can always fall back to doing the work itself.
type Delegator struct {
	bus      *Bus
	requests chan delegationRequest

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	logger  *zap.Logger
	metrics Metrics
}

// NewDelegator creates the delegation facade. Timings and queue sizes
// come from the bus configuration.
func NewDelegator(bus *Bus, logger *zap.Logger, m Metrics) *Delegator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Delegator{
		bus:      bus,
		requests: make(chan delegationRequest, bus.Config().RequestQueue),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "delegator")),
		metrics:  m,
	}
}

// Start launches the background coordinator loop.
func (d *Delegator) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run()
		d.logger.Info("delegation coordinator started")
	})
}

// Stop halts the loop. In-flight auctions and still-queued requests
// resolve their response slots with nil; no caller is left blocked.
func (d *Delegator) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// ShouldDelegate reports whether a task's complexity justifies the
// auction overhead. Only Complex and Intensive tiers qualify.
func (d *Delegator) ShouldDelegate(c Complexity) bool {
	return c >= ComplexityComplex
}

// DelegateTask runs the full delegation cycle and returns the winning
// worker's payload. The boolean is false and the payload nil when
// no worker matched, the auction drew no bids, the worker reported
// failure, or no result arrived within the result timeout. A false
// return means the caller performs the task itself; it is never fatal.
//
// Cancelling ctx abandons the wait. The background auction still runs
// to completion; its result is discarded.
func (d *Delegator) DelegateTask(ctx context.Context, description string, taskType TaskType, complexity Complexity, taskCtx map[string]any) (any, bool) {
	start := time.Now()
	req := delegationRequest{
		task: TaskAnnouncement{
			TaskID:      uuid.New(),
			Description: description,
			Type:        taskType,
			Complexity:  complexity,
			Context:     taskCtx,
			Timestamp:   start,
		},
		response: make(chan *Result, 1),
	}

	select {
	case d.requests <- req:
	case <-ctx.Done():
		d.metrics.RecordDelegation(DelegationAbandoned, time.Since(start))
		return nil, false
	case <-d.done:
		return nil, false
	}

	select {
	case res := <-req.response:
		return d.resolve(req, res, start)
	case <-ctx.Done():
		d.metrics.RecordDelegation(DelegationAbandoned, time.Since(start))
		return nil, false
	case <-d.done:
		// Shutdown. Take a result that already landed in the slot;
		// otherwise the request resolves to nothing. Without this case
		// a request stuck in the queue would block forever.
		select {
		case res := <-req.response:
			return d.resolve(req, res, start)
		default:
			return nil, false
		}
	}
}

// resolve maps an auction outcome onto the DelegateTask return
// contract: nil result and worker failure both collapse to false.
func (d *Delegator) resolve(req delegationRequest, res *Result, start time.Time) (any, bool) {
	switch {
	case res == nil:
		// No bids, result timeout, or shutdown; the auction loop
		// already recorded which.
		d.logger.Debug("no worker available for task",
			zap.String("task_id", req.task.TaskID.String()),
		)
		return nil, false
	case !res.Success:
		d.logger.Warn("delegated task failed",
			zap.String("task_id", res.TaskID.String()),
			zap.String("worker_name", res.WorkerName),
			zap.String("error", res.Error),
		)
		d.metrics.RecordDelegation(DelegationFailed, time.Since(start))
		return nil, false
	default:
		d.metrics.RecordDelegation(DelegationSucceeded, time.Since(start))
		return res.Payload, true
	}
}

// CheckAlerts drains and returns all pending anomaly alerts.
func (d *Delegator) CheckAlerts() []Alert {
	return d.bus.DrainPendingAlerts()
}

// ToggleSwarmMode flips the status visibility gate.
func (d *Delegator) ToggleSwarmMode(visible bool) {
	d.bus.SetVisible(visible)
}

// SwarmStatus returns the status snapshot when the visibility gate is
// on; nil and false otherwise.
func (d *Delegator) SwarmStatus() (*StatusSnapshot, bool) {
	return d.bus.VisibleStatus()
}

// run receives delegation requests and launches one auction cycle per
// request. Each cycle runs in its own goroutine so a slow result wait
// never delays the next auction.
func (d *Delegator) run() {
	defer d.wg.Done()

	for {
		select {
		case req := <-d.requests:
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.runAuction(req)
			}()
		case <-d.done:
			d.drainRequests()
			return
		}
	}
}

// drainRequests resolves every request still queued at shutdown so no
// caller is left waiting on a slot nobody will fill.
func (d *Delegator) drainRequests() {
	for {
		select {
		case req := <-d.requests:
			req.respond(nil)
		default:
			return
		}
	}
}

// runAuction executes one announce → wait → close → await-result
// cycle and resolves the request's response slot exactly once.
func (d *Delegator) runAuction(req delegationRequest) {
	cfg := d.bus.Config()
	taskID := d.bus.StartAuction(req.task)

	timer := time.NewTimer(cfg.AuctionTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.done:
		req.respond(nil)
		return
	}

	assignment := d.bus.CloseAuction(taskID)
	if assignment == nil {
		d.metrics.RecordDelegation(DelegationNoWinner, time.Since(req.task.Timestamp))
		req.respond(nil)
		return
	}

	// The winner executes; wait for its result through the ledger's
	// keyed waiter rather than polling a shared drain.
	resultCh := d.bus.WatchResult(taskID)
	defer d.bus.UnwatchResult(taskID)

	resultTimer := time.NewTimer(cfg.ResultTimeout)
	defer resultTimer.Stop()

	select {
	case res := <-resultCh:
		req.respond(&res)
	case <-resultTimer.C:
		d.logger.Warn("timed out waiting for task result",
			zap.String("task_id", taskID.String()),
			zap.String("worker_id", assignment.WorkerID.String()),
			zap.Duration("result_timeout", cfg.ResultTimeout),
		)
		d.metrics.RecordDelegation(DelegationTimedOut, time.Since(req.task.Timestamp))
		req.respond(nil)
	case <-d.done:
		req.respond(nil)
	}
}

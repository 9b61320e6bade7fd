package swarm

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pendingAuction is the ephemeral state of one open auction. It exists
// only inside the Auctioneer's table and is discarded when the auction
// closes.
type pendingAuction struct {
	task      TaskAnnouncement
	bids      []Bid
	deadline  time.Time
	startedAt time.Time
}

// Auctioneer runs time-boxed sealed-bid auctions. StartAuction opens an
// auction and broadcasts the announcement; workers submit bids until
// the deadline; CloseAuction removes the auction, picks the winner, and
// broadcasts the assignment.
//
// Every mutation of the pending-auction table happens under one lock
// acquisition, so concurrent bidders and concurrent delegations can
// neither corrupt a bid list nor double-close an auction. No method
// here ever blocks on anything but that lock.
type Auctioneer struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pendingAuction

	channel  *Channel
	registry *Registry
	ledger   *Ledger
	timeout  time.Duration

	logger  *zap.Logger
	metrics Metrics
}

// NewAuctioneer creates an auction coordinator. timeout is how long
// each auction accepts bids after it starts.
func NewAuctioneer(channel *Channel, registry *Registry, ledger *Ledger, timeout time.Duration, logger *zap.Logger, m Metrics) *Auctioneer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Auctioneer{
		pending:  make(map[uuid.UUID]*pendingAuction),
		channel:  channel,
		registry: registry,
		ledger:   ledger,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "auctioneer")),
		metrics:  m,
	}
}

// Timeout returns the configured auction window.
func (a *Auctioneer) Timeout() time.Duration {
	return a.timeout
}

// StartAuction opens an auction for the task and broadcasts the
// announcement to all subscribers. It returns the task id immediately;
// collection and closing happen elsewhere. At most one auction exists
// per task id: starting one that is already open leaves the original
// untouched.
func (a *Auctioneer) StartAuction(task TaskAnnouncement) uuid.UUID {
	now := time.Now()

	a.mu.Lock()
	if _, exists := a.pending[task.TaskID]; exists {
		a.mu.Unlock()
		a.logger.Warn("auction already open for task",
			zap.String("task_id", task.TaskID.String()),
		)
		return task.TaskID
	}
	a.pending[task.TaskID] = &pendingAuction{
		task:      task,
		deadline:  now.Add(a.timeout),
		startedAt: now,
	}
	a.mu.Unlock()

	a.logger.Info("auction started",
		zap.String("task_id", task.TaskID.String()),
		zap.String("task_type", string(task.Type)),
		zap.String("description", task.Description),
	)
	a.metrics.RecordAuctionStarted()

	a.channel.Broadcast(NewAnnouncementMessage(task))
	return task.TaskID
}

// SubmitBid records a bid if its auction is still open and the deadline
// has not passed. Late bids and bids for unknown or already-closed
// auctions are silently dropped; they can never resurrect a closed
// auction. Returns true when the bid was accepted.
func (a *Auctioneer) SubmitBid(bid Bid) bool {
	a.mu.Lock()
	auction, ok := a.pending[bid.TaskID]
	accepted := ok && time.Now().Before(auction.deadline)
	if accepted {
		auction.bids = append(auction.bids, bid)
	}
	a.mu.Unlock()

	switch {
	case !ok:
		a.logger.Debug("bid for unknown auction dropped",
			zap.String("task_id", bid.TaskID.String()),
			zap.String("worker_name", bid.WorkerName),
		)
	case !accepted:
		a.logger.Warn("bid rejected, auction deadline passed",
			zap.String("task_id", bid.TaskID.String()),
			zap.String("worker_name", bid.WorkerName),
		)
	default:
		a.logger.Debug("bid received",
			zap.String("task_id", bid.TaskID.String()),
			zap.String("worker_name", bid.WorkerName),
			zap.Float64("score", bid.OverallScore()),
		)
	}
	a.metrics.RecordBid(accepted)
	return accepted
}

// CloseAuction removes the auction and selects the winner: the bid
// with the highest overall score, with equal scores broken by
// ascending worker id. The winning assignment is recorded in the
// ledger, broadcast to all subscribers, and returned. It returns nil
// when the auction drew no bids or does not exist, which makes a
// second close for the same task id an idempotent nil.
func (a *Auctioneer) CloseAuction(taskID uuid.UUID) *Assignment {
	a.mu.Lock()
	auction, ok := a.pending[taskID]
	if ok {
		delete(a.pending, taskID)
	}
	a.mu.Unlock()

	if !ok {
		a.metrics.RecordAuctionClosed(OutcomeNotFound, 0, 0)
		return nil
	}

	elapsed := time.Since(auction.startedAt)
	if len(auction.bids) == 0 {
		a.logger.Warn("auction closed with no bids",
			zap.String("task_id", taskID.String()),
		)
		a.metrics.RecordAuctionClosed(OutcomeNoBids, 0, elapsed)
		return nil
	}

	winner := selectWinner(auction.bids)
	assignment := Assignment{
		TaskID:    taskID,
		WorkerID:  winner.WorkerID,
		Task:      auction.task,
		Timestamp: time.Now(),
	}

	a.ledger.RecordAssignment(taskID, winner.WorkerID)

	a.logger.Info("auction won",
		zap.String("task_id", taskID.String()),
		zap.String("worker_name", winner.WorkerName),
		zap.Float64("score", winner.OverallScore()),
		zap.Int("bids", len(auction.bids)),
	)
	a.metrics.RecordAuctionClosed(OutcomeAssigned, len(auction.bids), elapsed)

	a.channel.Broadcast(NewAssignmentMessage(assignment))
	return &assignment
}

// PendingCount returns the number of currently open auctions.
func (a *Auctioneer) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// selectWinner picks the highest-scoring bid. Ties break by ascending
// worker id, so the winner is deterministic regardless of bid arrival
// order.
func selectWinner(bids []Bid) Bid {
	winner := bids[0]
	winnerScore := winner.OverallScore()
	for _, b := range bids[1:] {
		score := b.OverallScore()
		if score > winnerScore ||
			(score == winnerScore && b.WorkerID.String() < winner.WorkerID.String()) {
			winner = b
			winnerScore = score
		}
	}
	return winner
}

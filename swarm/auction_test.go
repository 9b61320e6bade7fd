package swarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuctioneer(t *testing.T, timeout time.Duration) (*Auctioneer, *Channel, *Ledger) {
	t.Helper()
	logger := zap.NewNop()
	channel := NewChannel(64, logger, nil)
	t.Cleanup(channel.Close)
	registry := NewRegistry(logger, nil)
	ledger := NewLedger(logger, nil)
	return NewAuctioneer(channel, registry, ledger, timeout, logger, nil), channel, ledger
}

func newTestAnnouncement(taskType TaskType) TaskAnnouncement {
	return TaskAnnouncement{
		TaskID:      uuid.New(),
		Description: "scan for vulnerabilities",
		Type:        taskType,
		Complexity:  ComplexityModerate,
		Timestamp:   time.Now(),
	}
}

func TestAuctionSelectsHighestScore(t *testing.T) {
	t.Parallel()

	a, _, ledger := newTestAuctioneer(t, time.Second)
	task := newTestAnnouncement(TaskSecurityAnalysis)
	taskID := a.StartAuction(task)

	weak := Bid{TaskID: taskID, WorkerID: uuid.New(), WorkerName: "weak", Confidence: 0.3, SpecializationMatch: 0.5, CurrentLoad: 0.8}
	strong := Bid{TaskID: taskID, WorkerID: uuid.New(), WorkerName: "strong", Confidence: 0.9, SpecializationMatch: 1.0, CurrentLoad: 0.2}
	require.True(t, a.SubmitBid(weak))
	require.True(t, a.SubmitBid(strong))

	assignment := a.CloseAuction(taskID)
	require.NotNil(t, assignment)
	assert.Equal(t, strong.WorkerID, assignment.WorkerID)
	assert.Equal(t, task.TaskID, assignment.Task.TaskID)

	// Winner is recorded as the active worker for the task.
	workerID, ok := ledger.WorkerFor(taskID)
	require.True(t, ok)
	assert.Equal(t, strong.WorkerID, workerID)
}

func TestAuctionEqualScoresBreakByWorkerID(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	taskID := a.StartAuction(newTestAnnouncement(TaskCodeAnalysis))

	first := Bid{TaskID: taskID, WorkerID: uuid.New(), Confidence: 0.8, SpecializationMatch: 0.8, CurrentLoad: 0.5}
	second := Bid{TaskID: taskID, WorkerID: uuid.New(), Confidence: 0.8, SpecializationMatch: 0.8, CurrentLoad: 0.5}
	a.SubmitBid(first)
	a.SubmitBid(second)

	want := first.WorkerID
	if second.WorkerID.String() < want.String() {
		want = second.WorkerID
	}

	assignment := a.CloseAuction(taskID)
	require.NotNil(t, assignment)
	assert.Equal(t, want, assignment.WorkerID)
}

func TestAuctionLateBidNeverWins(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, 20*time.Millisecond)
	taskID := a.StartAuction(newTestAnnouncement(TaskSecurityAnalysis))

	early := Bid{TaskID: taskID, WorkerID: uuid.New(), WorkerName: "early", Confidence: 0.1, SpecializationMatch: 0.1, CurrentLoad: 0.9}
	require.True(t, a.SubmitBid(early))

	time.Sleep(40 * time.Millisecond)

	// Highest possible score, but past the deadline: dropped, not stored.
	late := Bid{TaskID: taskID, WorkerID: uuid.New(), WorkerName: "late", Confidence: 1.0, SpecializationMatch: 1.0, CurrentLoad: 0}
	assert.False(t, a.SubmitBid(late))

	assignment := a.CloseAuction(taskID)
	require.NotNil(t, assignment)
	assert.Equal(t, early.WorkerID, assignment.WorkerID)
}

func TestAuctionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	taskID := a.StartAuction(newTestAnnouncement(TaskSecurityAnalysis))
	a.SubmitBid(Bid{TaskID: taskID, WorkerID: uuid.New(), Confidence: 0.9, SpecializationMatch: 1.0})

	first := a.CloseAuction(taskID)
	require.NotNil(t, first)

	// Every subsequent close returns nil.
	assert.Nil(t, a.CloseAuction(taskID))
	assert.Nil(t, a.CloseAuction(taskID))
}

func TestAuctionNoBidsReturnsNil(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	taskID := a.StartAuction(newTestAnnouncement(TaskWebScraping))
	assert.Nil(t, a.CloseAuction(taskID))
}

func TestAuctionBidAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	taskID := a.StartAuction(newTestAnnouncement(TaskSecurityAnalysis))
	require.Nil(t, a.CloseAuction(taskID))

	// An orphaned bid must not resurrect the closed auction.
	assert.False(t, a.SubmitBid(Bid{TaskID: taskID, WorkerID: uuid.New(), Confidence: 1.0}))
	assert.Equal(t, 0, a.PendingCount())
	assert.Nil(t, a.CloseAuction(taskID))
}

func TestAuctionStartBroadcastsAnnouncement(t *testing.T) {
	t.Parallel()

	a, channel, _ := newTestAuctioneer(t, time.Second)
	sub := channel.Subscribe()

	task := newTestAnnouncement(TaskDataProcessing)
	a.StartAuction(task)

	msg := <-sub.Messages()
	require.Equal(t, KindTaskAnnouncement, msg.Kind)
	assert.Equal(t, task.TaskID, msg.Announcement.TaskID)
}

func TestAuctionDuplicateStartKeepsOriginal(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	task := newTestAnnouncement(TaskSecurityAnalysis)

	a.StartAuction(task)
	bid := Bid{TaskID: task.TaskID, WorkerID: uuid.New(), Confidence: 0.9, SpecializationMatch: 1.0}
	require.True(t, a.SubmitBid(bid))

	// Restarting the same task id must not wipe collected bids.
	a.StartAuction(task)
	assignment := a.CloseAuction(task.TaskID)
	require.NotNil(t, assignment)
	assert.Equal(t, bid.WorkerID, assignment.WorkerID)
}

func TestAuctionConcurrentBidders(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuctioneer(t, time.Second)
	taskID := a.StartAuction(newTestAnnouncement(TaskGeneralComputation))

	const bidders = 32
	done := make(chan uuid.UUID, bidders)
	for i := 0; i < bidders; i++ {
		go func(n int) {
			id := uuid.New()
			a.SubmitBid(Bid{
				TaskID:              taskID,
				WorkerID:            id,
				Confidence:          float64(n) / bidders,
				SpecializationMatch: 0.5,
				CurrentLoad:         0.5,
			})
			done <- id
		}(i)
	}
	for i := 0; i < bidders; i++ {
		<-done
	}

	assignment := a.CloseAuction(taskID)
	require.NotNil(t, assignment)
	assert.Equal(t, 0, a.PendingCount())
}

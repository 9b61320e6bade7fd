package swarm

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLedgerSubmitResultClearsAssignment(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	taskID, workerID := uuid.New(), uuid.New()

	l.RecordAssignment(taskID, workerID)
	assert.Equal(t, 1, l.ActiveCount())

	got, ok := l.WorkerFor(taskID)
	require.True(t, ok)
	assert.Equal(t, workerID, got)

	l.SubmitResult(Result{TaskID: taskID, WorkerID: workerID, Success: true})
	assert.Equal(t, 0, l.ActiveCount())

	results := l.DrainPendingResults()
	require.Len(t, results, 1)
	assert.Equal(t, taskID, results[0].TaskID)
}

func TestLedgerDrainReturnsEachItemOnce(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	for i := 0; i < 5; i++ {
		l.SubmitResult(Result{TaskID: uuid.New(), Success: true})
		l.SubmitAlert(Alert{AlertID: uuid.New(), Severity: SeverityLow})
	}

	assert.Len(t, l.DrainPendingResults(), 5)
	assert.Empty(t, l.DrainPendingResults())
	assert.Len(t, l.DrainPendingAlerts(), 5)
	assert.Empty(t, l.DrainPendingAlerts())
}

func TestLedgerConcurrentDrainNoDuplicates(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)

	const total = 200
	ids := make(map[uuid.UUID]bool, total)
	for i := 0; i < total; i++ {
		res := Result{TaskID: uuid.New(), Success: true}
		ids[res.TaskID] = true
		l.SubmitResult(res)
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := l.DrainPendingResults()
			mu.Lock()
			for _, res := range batch {
				seen[res.TaskID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, total, "every enqueued result must surface")
	for id, count := range seen {
		assert.Equal(t, 1, count, "result %s drained more than once", id)
		assert.True(t, ids[id])
	}
}

func TestLedgerWatchResultDeliversDirectly(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	taskID := uuid.New()

	ch := l.WatchResult(taskID)
	l.SubmitResult(Result{TaskID: taskID, Success: true})

	res := <-ch
	assert.Equal(t, taskID, res.TaskID)

	// Watched results bypass the drain queue.
	assert.Empty(t, l.DrainPendingResults())
}

func TestLedgerWatchResultClaimsQueuedResult(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	taskID := uuid.New()
	other := uuid.New()

	l.SubmitResult(Result{TaskID: other, Success: true})
	l.SubmitResult(Result{TaskID: taskID, Success: true})

	// The result landed before the watch; it is claimed immediately.
	ch := l.WatchResult(taskID)
	res := <-ch
	assert.Equal(t, taskID, res.TaskID)

	// The unrelated result stays queued for a normal drain.
	remaining := l.DrainPendingResults()
	require.Len(t, remaining, 1)
	assert.Equal(t, other, remaining[0].TaskID)
}

func TestLedgerUnwatchRedirectsToQueue(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	taskID := uuid.New()

	l.WatchResult(taskID)
	l.Unwatch(taskID)

	l.SubmitResult(Result{TaskID: taskID, Success: false})
	results := l.DrainPendingResults()
	require.Len(t, results, 1)
	assert.Equal(t, taskID, results[0].TaskID)
}

func TestLedgerRepeatWatchReturnsSameChannel(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	taskID := uuid.New()

	a := l.WatchResult(taskID)
	b := l.WatchResult(taskID)
	assert.Equal(t, a, b)
}

func TestLedgerAlertsNeedNoTaskLinkage(t *testing.T) {
	t.Parallel()

	l := NewLedger(zap.NewNop(), nil)
	l.SubmitAlert(Alert{
		AlertID:     uuid.New(),
		WorkerName:  "sentinel",
		Severity:    SeverityCritical,
		Category:    "intrusion",
		Description: "unexpected outbound connection",
	})

	alerts := l.DrainPendingAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 0, l.PendingAlertCount())
}

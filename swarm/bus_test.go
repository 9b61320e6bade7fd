package swarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, cfg Config) *Bus {
	t.Helper()
	bus := NewBus(cfg, zap.NewNop(), nil)
	t.Cleanup(bus.Stop)
	return bus
}

func testRegistration(name string, specs ...TaskType) Registration {
	return Registration{
		WorkerID:           uuid.New(),
		WorkerName:         name,
		Specializations:    specs,
		MaxConcurrentTasks: 3,
		Timestamp:          time.Now(),
	}
}

func TestBusZeroConfigFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	cfg := bus.Config()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestBusStatusCounts(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	bus.RegisterWorker(testRegistration("alpha", TaskSecurityAnalysis))
	bus.RegisterWorker(testRegistration("beta", TaskCodeAnalysis))
	bus.RegisterWorker(testRegistration("gamma", TaskDataProcessing))

	status := bus.Status()
	assert.Equal(t, 3, status.TotalWorkers)
	assert.Equal(t, 3, status.ActiveWorkers)
	assert.Equal(t, 0, status.PendingAuctions)
	assert.Equal(t, 0, status.ActiveTasks)
	assert.Len(t, status.Workers, 3)

	bus.StartAuction(TaskAnnouncement{
		TaskID:     uuid.New(),
		Type:       TaskSecurityAnalysis,
		Complexity: ComplexityComplex,
		Timestamp:  time.Now(),
	})
	assert.Equal(t, 1, bus.Status().PendingAuctions)
}

func TestBusVisibilityGate(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	for _, name := range []string{"alpha", "beta", "gamma"} {
		bus.RegisterWorker(testRegistration(name, TaskSecurityAnalysis))
	}

	// Hidden by default, no matter how many workers exist.
	require.False(t, bus.Visible())
	status, ok := bus.VisibleStatus()
	assert.False(t, ok)
	assert.Nil(t, status)

	bus.SetVisible(true)
	status, ok = bus.VisibleStatus()
	require.True(t, ok)
	require.NotNil(t, status)
	assert.Equal(t, 3, status.TotalWorkers)

	bus.SetVisible(false)
	_, ok = bus.VisibleStatus()
	assert.False(t, ok)
}

func TestBusRegisterBroadcasts(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	sub := bus.Subscribe()

	reg := testRegistration("alpha", TaskSecurityAnalysis)
	bus.RegisterWorker(reg)

	msg := <-sub.Messages()
	require.Equal(t, KindRegistration, msg.Kind)
	assert.Equal(t, reg.WorkerID, msg.Registration.WorkerID)

	bus.DeregisterWorker(reg.WorkerID)
	msg = <-sub.Messages()
	require.Equal(t, KindDeregistration, msg.Kind)
	assert.Equal(t, reg.WorkerID, msg.Deregistration.WorkerID)
}

func TestBusDeregisterUnknownIsSilent(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	sub := bus.Subscribe()

	bus.DeregisterWorker(uuid.New())

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected broadcast %v for unknown worker", msg.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusStartStopIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{}, zap.NewNop(), nil)
	bus.Start()
	bus.Start()
	bus.Stop()
	bus.Stop()
}

func TestBusSweeperPrunesDeadWorkers(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{
		SweepInterval:    10 * time.Millisecond,
		HeartbeatTimeout: 25 * time.Millisecond,
	})
	bus.Start()

	stale := testRegistration("stale", TaskSecurityAnalysis)
	fresh := testRegistration("fresh", TaskSecurityAnalysis)
	bus.RegisterWorker(stale)
	bus.RegisterWorker(fresh)

	// Keep one worker alive past the other's heartbeat deadline.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		bus.UpdateHeartbeat(Heartbeat{
			WorkerID:    fresh.WorkerID,
			WorkerName:  fresh.WorkerName,
			Status:      StatusIdle,
			CurrentLoad: 0.1,
			Timestamp:   time.Now(),
		})
		if bus.Status().TotalWorkers == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := bus.Status()
	require.Equal(t, 1, status.TotalWorkers)
	assert.Equal(t, fresh.WorkerID, status.Workers[0].ID)
}

func TestBusBestWorkerFor(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t, Config{})
	reg := testRegistration("analyst", TaskSecurityAnalysis)
	bus.RegisterWorker(reg)

	id, ok := bus.BestWorkerFor(TaskSecurityAnalysis)
	require.True(t, ok)
	assert.Equal(t, reg.WorkerID, id)

	_, ok = bus.BestWorkerFor(TaskWebScraping)
	assert.False(t, ok)
}

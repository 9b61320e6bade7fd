package swarm

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the bus timing and sizing knobs. The config package
// loads these from YAML/env; embedders can also fill them directly.
type Config struct {
	// AuctionTimeout is how long each auction accepts bids.
	AuctionTimeout time.Duration `yaml:"auction_timeout" json:"auction_timeout"`
	// HeartbeatTimeout is the heartbeat age beyond which a worker is
	// considered dead and pruned.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" json:"heartbeat_timeout"`
	// SweepInterval is how often the liveness sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	// ResultTimeout bounds how long a delegation waits for the winning
	// worker's result.
	ResultTimeout time.Duration `yaml:"result_timeout" json:"result_timeout"`
	// BroadcastBuffer is the per-subscriber message buffer size.
	BroadcastBuffer int `yaml:"broadcast_buffer" json:"broadcast_buffer"`
	// RequestQueue is the delegation request queue size.
	RequestQueue int `yaml:"request_queue" json:"request_queue"`
}

// DefaultConfig returns the stock bus configuration.
func DefaultConfig() Config {
	return Config{
		AuctionTimeout:   5 * time.Second,
		HeartbeatTimeout: 30 * time.Second,
		SweepInterval:    60 * time.Second,
		ResultTimeout:    300 * time.Second,
		BroadcastBuffer:  1024,
		RequestQueue:     100,
	}
}

// StatusSnapshot is a point-in-time view of the swarm for privileged
// display.
type StatusSnapshot struct {
	TotalWorkers    int             `json:"total_workers"`
	ActiveWorkers   int             `json:"active_workers"`
	PendingAuctions int             `json:"pending_auctions"`
	ActiveTasks     int             `json:"active_tasks"`
	Workers         []WorkerSummary `json:"workers"`
}

// WorkerSummary is one worker's line in a status snapshot.
type WorkerSummary struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Status          WorkerStatus  `json:"status"`
	CurrentLoad     float64       `json:"current_load"`
	ActiveTasks     int           `json:"active_tasks"`
	Specializations []TaskType    `json:"specializations"`
	HeartbeatAge    time.Duration `json:"heartbeat_age"`
}

// Bus is the swarm coordination context: one explicit object composing
// the broadcast channel, worker registry, task ledger, and auctioneer,
// with its lifecycle bound to application start and stop. Construct one
// per process and inject it into everything that talks to the swarm.
type Bus struct {
	cfg        Config
	channel    *Channel
	registry   *Registry
	ledger     *Ledger
	auctioneer *Auctioneer
	sweeper    *Sweeper

	visMu   sync.RWMutex
	visible bool

	startOnce sync.Once
	stopOnce  sync.Once

	logger *zap.Logger
}

// NewBus creates a swarm bus. Zero-valued cfg fields fall back to
// DefaultConfig. m may be nil.
func NewBus(cfg Config, logger *zap.Logger, m Metrics) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	def := DefaultConfig()
	if cfg.AuctionTimeout <= 0 {
		cfg.AuctionTimeout = def.AuctionTimeout
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = def.ResultTimeout
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}
	if cfg.RequestQueue <= 0 {
		cfg.RequestQueue = def.RequestQueue
	}

	channel := NewChannel(cfg.BroadcastBuffer, logger, m)
	registry := NewRegistry(logger, m)
	ledger := NewLedger(logger, m)

	bus := &Bus{
		cfg:        cfg,
		channel:    channel,
		registry:   registry,
		ledger:     ledger,
		auctioneer: NewAuctioneer(channel, registry, ledger, cfg.AuctionTimeout, logger, m),
		logger:     logger.With(zap.String("component", "swarm_bus")),
	}
	bus.sweeper = NewSweeper(registry, cfg.SweepInterval, cfg.HeartbeatTimeout, logger)
	return bus
}

// Start launches the background liveness sweeper. Safe to call once;
// repeat calls are no-ops.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.sweeper.Start()
		b.logger.Info("swarm bus started",
			zap.Duration("auction_timeout", b.cfg.AuctionTimeout),
			zap.Duration("heartbeat_timeout", b.cfg.HeartbeatTimeout),
		)
	})
}

// Stop halts the sweeper and closes the broadcast channel.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.sweeper.Stop()
		b.channel.Close()
		b.logger.Info("swarm bus stopped")
	})
}

// Config returns the bus configuration.
func (b *Bus) Config() Config { return b.cfg }

// Subscribe yields an independent receive handle on the broadcast
// channel.
func (b *Bus) Subscribe() *Subscription { return b.channel.Subscribe() }

// Broadcast fans a message out to all subscribers and returns the
// delivery count. Zero subscribers is not an error.
func (b *Bus) Broadcast(msg Message) int { return b.channel.Broadcast(msg) }

// RegisterWorker adds the worker to the registry and broadcasts the
// registration to the rest of the swarm.
func (b *Bus) RegisterWorker(reg Registration) {
	b.registry.Register(reg)
	b.channel.Broadcast(NewRegistrationMessage(reg))
}

// DeregisterWorker removes the worker and, if it existed, broadcasts
// the departure.
func (b *Bus) DeregisterWorker(id uuid.UUID) {
	if b.registry.Deregister(id) {
		b.channel.Broadcast(NewDeregistrationMessage(Deregistration{
			WorkerID:  id,
			Timestamp: time.Now(),
		}))
	}
}

// UpdateHeartbeat refreshes a worker's liveness from a heartbeat.
// Unknown worker ids are ignored.
func (b *Bus) UpdateHeartbeat(hb Heartbeat) bool { return b.registry.Heartbeat(hb) }

// BestWorkerFor returns the least-loaded eligible worker for a task
// type, bypassing the auction. Used for simple tasks not worth an
// auction round-trip.
func (b *Bus) BestWorkerFor(t TaskType) (uuid.UUID, bool) { return b.registry.BestWorkerFor(t) }

// StartAuction opens an auction and broadcasts the announcement.
func (b *Bus) StartAuction(task TaskAnnouncement) uuid.UUID { return b.auctioneer.StartAuction(task) }

// SubmitBid records a bid for an open auction.
func (b *Bus) SubmitBid(bid Bid) bool { return b.auctioneer.SubmitBid(bid) }

// CloseAuction closes an auction and returns the winning assignment,
// or nil when there was none.
func (b *Bus) CloseAuction(taskID uuid.UUID) *Assignment { return b.auctioneer.CloseAuction(taskID) }

// SubmitResult records a worker's task result.
func (b *Bus) SubmitResult(res Result) { b.ledger.SubmitResult(res) }

// SubmitAlert queues a worker's anomaly alert.
func (b *Bus) SubmitAlert(alert Alert) { b.ledger.SubmitAlert(alert) }

// DrainPendingResults atomically empties and returns the queued
// results.
func (b *Bus) DrainPendingResults() []Result { return b.ledger.DrainPendingResults() }

// DrainPendingAlerts atomically empties and returns the queued alerts.
func (b *Bus) DrainPendingAlerts() []Alert { return b.ledger.DrainPendingAlerts() }

// WatchResult registers a keyed waiter for one task's result.
func (b *Bus) WatchResult(taskID uuid.UUID) <-chan Result { return b.ledger.WatchResult(taskID) }

// UnwatchResult drops the waiter for a task id.
func (b *Bus) UnwatchResult(taskID uuid.UUID) { b.ledger.Unwatch(taskID) }

// SetVisible toggles the presentation gate for swarm status. The gate
// is presentation only, not an access-control boundary.
func (b *Bus) SetVisible(visible bool) {
	b.visMu.Lock()
	b.visible = visible
	b.visMu.Unlock()
	b.logger.Info("swarm visibility toggled", zap.Bool("visible", visible))
}

// Visible reports whether swarm status is exposed.
func (b *Bus) Visible() bool {
	b.visMu.RLock()
	defer b.visMu.RUnlock()
	return b.visible
}

// Status builds a full snapshot of the swarm regardless of the
// visibility gate. Gated callers should use VisibleStatus.
func (b *Bus) Status() StatusSnapshot {
	now := time.Now()
	workers := b.registry.Snapshot()

	summaries := make([]WorkerSummary, 0, len(workers))
	active := 0
	for _, w := range workers {
		if w.Status != StatusOffline {
			active++
		}
		summaries = append(summaries, WorkerSummary{
			ID:              w.ID,
			Name:            w.Name,
			Status:          w.Status,
			CurrentLoad:     w.CurrentLoad,
			ActiveTasks:     w.ActiveTasks,
			Specializations: w.Specializations,
			HeartbeatAge:    now.Sub(w.LastHeartbeat),
		})
	}

	return StatusSnapshot{
		TotalWorkers:    len(workers),
		ActiveWorkers:   active,
		PendingAuctions: b.auctioneer.PendingCount(),
		ActiveTasks:     b.ledger.ActiveCount(),
		Workers:         summaries,
	}
}

// VisibleStatus returns the status snapshot only when the visibility
// gate is on; otherwise it returns nil and false.
func (b *Bus) VisibleStatus() (*StatusSnapshot, bool) {
	if !b.Visible() {
		return nil, false
	}
	s := b.Status()
	return &s, true
}

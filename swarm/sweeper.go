package swarm

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically prunes workers whose heartbeats have gone
// stale. Pruning removes the worker record entirely; it does not
// cancel that worker's in-flight assignment. An orphaned task is
// caught by the delegation result timeout.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	logger *zap.Logger
}

// NewSweeper creates a liveness sweeper that runs every interval and
// prunes workers silent for longer than timeout.
func NewSweeper(registry *Registry, interval, timeout time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "liveness_sweeper")),
	}
}

// Start launches the sweep loop. Repeat calls are no-ops.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// Sweep prunes stale workers once and returns how many were removed.
func (s *Sweeper) Sweep() int {
	removed := s.registry.PruneStale(s.timeout)
	return len(removed)
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("sweep removed stale workers", zap.Int("count", n))
			}
		case <-s.done:
			return
		}
	}
}

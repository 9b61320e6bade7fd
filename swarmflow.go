// Package swarmflow provides a top-level convenience entry point for
// embedding the swarm coordination bus with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/swarmflow"
//
//	s := swarmflow.New()
//	s := swarmflow.New(swarmflow.WithConfig(cfg), swarmflow.WithLogger(logger))
//	s.Start()
//	defer s.Stop()
//
//	payload, ok := s.Delegator.DelegateTask(ctx, "scan the host", swarm.TaskSecurityAnalysis, swarm.ComplexityComplex, nil)
//
// This is a thin wrapper around [swarm.NewBus] and [swarm.NewDelegator];
// use the swarm package directly when you need to wire the pieces
// yourself.
package swarmflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
)

// System bundles a bus and its delegation loop under one lifecycle.
type System struct {
	Bus       *swarm.Bus
	Delegator *swarm.Delegator
}

// Option configures the system created by [New].
type Option func(*options)

type options struct {
	cfg     swarm.Config
	logger  *zap.Logger
	metrics swarm.Metrics
}

// WithConfig sets the bus configuration. Zero-valued fields fall back
// to defaults.
func WithConfig(cfg swarm.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m swarm.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a swarm system with default configuration unless
// overridden by options.
func New(opts ...Option) *System {
	o := options{cfg: swarm.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	bus := swarm.NewBus(o.cfg, o.logger, o.metrics)
	return &System{
		Bus:       bus,
		Delegator: swarm.NewDelegator(bus, o.logger, o.metrics),
	}
}

// Start launches the bus sweeper and the delegation loop.
func (s *System) Start() {
	s.Bus.Start()
	s.Delegator.Start()
}

// Stop halts the delegation loop first so in-flight requests resolve,
// then stops the bus.
func (s *System) Stop() {
	s.Delegator.Stop()
	s.Bus.Stop()
}

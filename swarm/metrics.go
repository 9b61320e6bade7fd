package swarm

import "time"

// Metrics receives operational counters from the bus. The concrete
// Prometheus-backed implementation lives in internal/metrics; tests and
// embedders that don't care pass nil and get NopMetrics.
type Metrics interface {
	RecordBroadcast(kind MessageKind, delivered, dropped int)
	RecordAuctionStarted()
	RecordBid(accepted bool)
	RecordAuctionClosed(outcome string, bids int, duration time.Duration)
	RecordDelegation(outcome string, duration time.Duration)
	RecordWorkerCount(total int)
	RecordWorkersPruned(count int)
	RecordResult(success bool)
	RecordAlert(severity Severity)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordBroadcast(MessageKind, int, int)          {}
func (NopMetrics) RecordAuctionStarted()                          {}
func (NopMetrics) RecordBid(bool)                                 {}
func (NopMetrics) RecordAuctionClosed(string, int, time.Duration) {}
func (NopMetrics) RecordDelegation(string, time.Duration)         {}
func (NopMetrics) RecordWorkerCount(int)                          {}
func (NopMetrics) RecordWorkersPruned(int)                        {}
func (NopMetrics) RecordResult(bool)                              {}
func (NopMetrics) RecordAlert(Severity)                           {}

// Auction close outcomes reported to Metrics.RecordAuctionClosed.
const (
	OutcomeAssigned = "assigned"
	OutcomeNoBids   = "no_bids"
	OutcomeNotFound = "not_found"
)

// Delegation outcomes reported to Metrics.RecordDelegation.
const (
	DelegationSucceeded = "succeeded"
	DelegationNoWinner  = "no_winner"
	DelegationFailed    = "failed"
	DelegationTimedOut  = "timed_out"
	DelegationAbandoned = "abandoned"
)

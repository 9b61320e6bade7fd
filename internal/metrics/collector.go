// Package metrics provides Prometheus collection for the swarm bus and
// the HTTP surface. This package is internal and should not be imported
// by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
)

// Collector implements swarm.Metrics on top of Prometheus and adds
// HTTP request metrics for the API surface.
type Collector struct {
	// Broadcast metrics
	broadcastsTotal  *prometheus.CounterVec
	broadcastDropped *prometheus.CounterVec

	// Auction metrics
	auctionsStarted prometheus.Counter
	auctionsClosed  *prometheus.CounterVec
	auctionBids     *prometheus.HistogramVec
	auctionDuration prometheus.Histogram
	bidsTotal       *prometheus.CounterVec

	// Delegation metrics
	delegationsTotal   *prometheus.CounterVec
	delegationDuration *prometheus.HistogramVec

	// Worker metrics
	workersRegistered prometheus.Gauge
	workersPruned     prometheus.Counter

	// Ledger metrics
	resultsTotal *prometheus.CounterVec
	alertsTotal  *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all swarmflow metrics under namespace on the
// default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Messages broadcast on the bus, by kind",
		},
		[]string{"kind"},
	)
	c.broadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Messages dropped at full subscriber buffers, by kind",
		},
		[]string{"kind"},
	)

	c.auctionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auctions_started_total",
			Help:      "Auctions opened",
		},
	)
	c.auctionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auctions_closed_total",
			Help:      "Auctions closed, by outcome",
		},
		[]string{"outcome"},
	)
	c.auctionBids = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auction_bids",
			Help:      "Bids collected per auction",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		},
		[]string{"outcome"},
	)
	c.auctionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auction_duration_seconds",
			Help:      "Time from auction start to close",
			Buckets:   prometheus.DefBuckets,
		},
	)
	c.bidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bids submitted, by acceptance",
		},
		[]string{"accepted"},
	)

	c.delegationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Delegation cycles, by outcome",
		},
		[]string{"outcome"},
	)
	c.delegationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "Full delegation cycle duration",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)

	c.workersRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_registered",
			Help:      "Currently registered workers",
		},
	)
	c.workersPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_pruned_total",
			Help:      "Workers removed for missed heartbeats",
		},
	)

	c.resultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Task results submitted, by success",
		},
		[]string{"success"},
	)
	c.alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Anomaly alerts submitted, by severity",
		},
		[]string{"severity"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordBroadcast implements swarm.Metrics.
func (c *Collector) RecordBroadcast(kind swarm.MessageKind, delivered, dropped int) {
	c.broadcastsTotal.WithLabelValues(string(kind)).Inc()
	if dropped > 0 {
		c.broadcastDropped.WithLabelValues(string(kind)).Add(float64(dropped))
	}
}

// RecordAuctionStarted implements swarm.Metrics.
func (c *Collector) RecordAuctionStarted() {
	c.auctionsStarted.Inc()
}

// RecordBid implements swarm.Metrics.
func (c *Collector) RecordBid(accepted bool) {
	c.bidsTotal.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

// RecordAuctionClosed implements swarm.Metrics.
func (c *Collector) RecordAuctionClosed(outcome string, bids int, duration time.Duration) {
	c.auctionsClosed.WithLabelValues(outcome).Inc()
	c.auctionBids.WithLabelValues(outcome).Observe(float64(bids))
	c.auctionDuration.Observe(duration.Seconds())
}

// RecordDelegation implements swarm.Metrics.
func (c *Collector) RecordDelegation(outcome string, duration time.Duration) {
	c.delegationsTotal.WithLabelValues(outcome).Inc()
	c.delegationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordWorkerCount implements swarm.Metrics.
func (c *Collector) RecordWorkerCount(total int) {
	c.workersRegistered.Set(float64(total))
}

// RecordWorkersPruned implements swarm.Metrics.
func (c *Collector) RecordWorkersPruned(count int) {
	c.workersPruned.Add(float64(count))
}

// RecordResult implements swarm.Metrics.
func (c *Collector) RecordResult(success bool) {
	c.resultsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordAlert implements swarm.Metrics.
func (c *Collector) RecordAlert(severity swarm.Severity) {
	c.alertsTotal.WithLabelValues(severity.String()).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

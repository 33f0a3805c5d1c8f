package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the node's Prometheus instruments.
type Metrics struct {
	// Consensus.
	ConsensusHeight   prometheus.Gauge
	ConsensusRound    prometheus.Gauge
	ConsensusStep     prometheus.Gauge
	StakeWeight       prometheus.Gauge
	StorageWeight     prometheus.Gauge
	TotalPower        prometheus.Gauge
	ActiveValidators  prometheus.Gauge
	RoundsCompleted   prometheus.Counter
	RoundsFailed      prometheus.Counter
	RoundDuration     prometheus.Histogram
	ProposalsCreated  prometheus.Counter
	VotesCast         prometheus.Counter
	VotesReceived     prometheus.Counter
	MessagesRejected  prometheus.Counter
	EvidenceDetected  prometheus.Counter
	TimeoutsTriggered prometheus.Counter
	WeightRebalances  *prometheus.CounterVec
	CommitPowerRatio  prometheus.Gauge

	// Mempool.
	MempoolSize prometheus.Gauge
	TxsAccepted prometheus.Counter
	TxsRejected prometheus.Counter

	// Storage.
	CommitsPersisted prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := newMetrics(namespace)
	m.registry = reg
	reg.MustRegister(m.collectors()...)
	return m
}

// NopMetrics returns a Metrics instance whose instruments are never
// registered, so observations are discarded.
func NopMetrics() *Metrics {
	m := newMetrics("nop")
	m.registry = prometheus.NewRegistry()
	return m
}

func newMetrics(namespace string) *Metrics {
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}

	return &Metrics{
		ConsensusHeight:  gauge("consensus", "height", "Current consensus height."),
		ConsensusRound:   gauge("consensus", "round", "Current consensus round."),
		ConsensusStep:    gauge("consensus", "step", "Current step: 0=Propose, 1=PreVote, 2=Commit."),
		StakeWeight:      gauge("consensus", "stake_weight", "Current hybrid stake weight."),
		StorageWeight:    gauge("consensus", "storage_weight", "Current hybrid storage weight."),
		TotalPower:       gauge("consensus", "total_power", "Total hybrid power of the active set."),
		ActiveValidators: gauge("consensus", "active_validators", "Number of active validators."),
		RoundsCompleted:  counter("consensus", "rounds_completed_total", "Rounds that committed a proposal."),
		RoundsFailed:     counter("consensus", "rounds_failed_total", "Rounds that ended without a commit."),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "round_duration_seconds",
			Help:      "Wall time of a full Propose/PreVote/Commit cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ProposalsCreated:  counter("consensus", "proposals_created_total", "Proposals built by this node."),
		VotesCast:         counter("consensus", "votes_cast_total", "Votes cast by this node."),
		VotesReceived:     counter("consensus", "votes_received_total", "Votes accepted from peers."),
		MessagesRejected:  counter("consensus", "messages_rejected_total", "Inbound proposals or votes rejected."),
		EvidenceDetected:  counter("consensus", "evidence_detected_total", "Double-vote evidence recorded."),
		TimeoutsTriggered: counter("consensus", "timeouts_triggered_total", "Phase waits that ran to their deadline."),
		WeightRebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "weight_rebalances_total",
			Help:      "Adaptive weight rebalances by trigger.",
		}, []string{"trigger"}),
		CommitPowerRatio: gauge("consensus", "commit_power_ratio", "Share of total power behind the last commit."),

		MempoolSize: gauge("mempool", "size", "Current number of payloads in the mempool."),
		TxsAccepted: counter("mempool", "txs_accepted_total", "Payloads accepted into the mempool."),
		TxsRejected: counter("mempool", "txs_rejected_total", "Payloads rejected from the mempool."),

		CommitsPersisted: counter("storage", "commits_persisted_total", "Committed proposals written to the store."),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConsensusHeight, m.ConsensusRound, m.ConsensusStep,
		m.StakeWeight, m.StorageWeight, m.TotalPower, m.ActiveValidators,
		m.RoundsCompleted, m.RoundsFailed, m.RoundDuration,
		m.ProposalsCreated, m.VotesCast, m.VotesReceived, m.MessagesRejected,
		m.EvidenceDetected, m.TimeoutsTriggered, m.WeightRebalances, m.CommitPowerRatio,
		m.MempoolSize, m.TxsAccepted, m.TxsRejected,
		m.CommitsPersisted,
	}
}

// Registry returns the Prometheus registry for this metrics instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsServer serves Prometheus metrics via HTTP.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a metrics HTTP server.
func NewMetricsServer(addr string, metrics *Metrics, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("metrics"),
	}
}

// Start begins serving metrics. It blocks until the server stops.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("metrics server starting", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the metrics server.
func (ms *MetricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.server.Shutdown(ctx)
}

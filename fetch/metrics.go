package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/0xmhha/eventsync-go/events"
)

// Metrics holds Prometheus metrics for the sync loop
type Metrics struct {
	// Gauges (current values)
	Cursor             prometheus.Gauge
	ChainHead          prometheus.Gauge
	Lag                prometheus.Gauge
	Threshold          prometheus.Gauge
	MonitoredContracts prometheus.Gauge

	// Counters (cumulative values)
	BlocksProcessed     prometheus.Counter
	MatchedTransactions prometheus.Counter
	ReceiptErrors       *prometheus.CounterVec
	DispatchedReceipts  *prometheus.CounterVec
	CycleErrors         *prometheus.CounterVec
	IdleCycles          prometheus.Counter

	// Histograms (distributions)
	CycleDuration prometheus.Histogram
	BlockDuration prometheus.Histogram
}

// NewMetrics creates and registers sync loop metrics on reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "eventsync"
	}
	const subsystem = "sync"
	factory := promauto.With(reg)

	return &Metrics{
		Cursor: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cursor_height",
			Help:      "Next block height to process",
		}),
		ChainHead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chain_head_height",
			Help:      "Latest block height reported by the node",
		}),
		Lag: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lag_blocks",
			Help:      "Blocks between the chain head and the cursor",
		}),
		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "finality_threshold_blocks",
			Help:      "Finality threshold in effect",
		}),
		MonitoredContracts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "monitored_contracts",
			Help:      "Number of monitored contract addresses",
		}),
		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_processed_total",
			Help:      "Total number of processed blocks",
		}),
		MatchedTransactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matched_transactions_total",
			Help:      "Total number of transactions sent to monitored contracts",
		}),
		ReceiptErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "receipt_errors_total",
			Help:      "Total number of dropped receipts by reason",
		}, []string{"reason"}),
		DispatchedReceipts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatched_receipts_total",
			Help:      "Total number of dispatched receipts by outcome",
		}, []string{"outcome"}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_errors_total",
			Help:      "Total number of errors that ended a drain by stage",
		}, []string{"stage"}),
		IdleCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idle_cycles_total",
			Help:      "Total number of cycles skipped because no contract is monitored",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one polling cycle",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		BlockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "block_duration_seconds",
			Help:      "Duration of processing one block",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) recordReceiptError(reason string) {
	if m == nil {
		return
	}
	m.ReceiptErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordCycleError(stage string) {
	if m == nil {
		return
	}
	m.CycleErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) recordIdle() {
	if m == nil {
		return
	}
	m.IdleCycles.Inc()
}

func (m *Metrics) recordProgress(head, cursor, threshold uint64, contracts int) {
	if m == nil {
		return
	}
	m.ChainHead.Set(float64(head))
	m.Cursor.Set(float64(cursor))
	m.Threshold.Set(float64(threshold))
	m.MonitoredContracts.Set(float64(contracts))
	if head >= cursor {
		m.Lag.Set(float64(head - cursor))
	} else {
		m.Lag.Set(0)
	}
}

func (m *Metrics) recordBlock(cursor uint64, head uint64, matched int, result events.DispatchResult, seconds float64) {
	if m == nil {
		return
	}
	m.BlocksProcessed.Inc()
	m.MatchedTransactions.Add(float64(matched))
	m.DispatchedReceipts.WithLabelValues(events.OutcomeHandled).Add(float64(result.Handled))
	m.DispatchedReceipts.WithLabelValues(events.OutcomeSkipped).Add(float64(result.Skipped))
	m.DispatchedReceipts.WithLabelValues(events.OutcomeFailed).Add(float64(result.Failed))
	m.BlockDuration.Observe(seconds)
	m.Cursor.Set(float64(cursor))
	if head >= cursor {
		m.Lag.Set(float64(head - cursor))
	} else {
		m.Lag.Set(0)
	}
}

func (m *Metrics) observeCycle(seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
}

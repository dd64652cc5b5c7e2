package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes
const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds Prometheus metrics for receipt dispatching
type Metrics struct {
	ReceiptsTotal  *prometheus.CounterVec
	HandleDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers dispatcher metrics on reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "eventsync"
	}
	factory := promauto.With(reg)

	return &Metrics{
		ReceiptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "receipts_total",
			Help:      "Total number of dispatched receipts by decoder and outcome",
		}, []string{"decoder", "outcome"}),
		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "handle_duration_seconds",
			Help:      "Time spent by a decoder on one receipt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"decoder"}),
	}
}

func (m *Metrics) recordReceipt(decoder, outcome string) {
	if m == nil {
		return
	}
	m.ReceiptsTotal.WithLabelValues(decoder, outcome).Inc()
}

func (m *Metrics) observeHandle(decoder string, seconds float64) {
	if m == nil {
		return
	}
	m.HandleDuration.WithLabelValues(decoder).Observe(seconds)
}

package threat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the threat engine's Prometheus instrumentation, one
// promauto-registered collector per concern.
type Metrics struct {
	InsightsTotal   *prometheus.CounterVec
	IngestDuration  prometheus.Histogram
	BufferOverruns  *prometheus.CounterVec
	BaselineMisses  *prometheus.CounterVec
	BroadcastsTotal prometheus.Counter
	BatchDuration   prometheus.Histogram
}

// NewMetrics creates and registers the Threat Engine's metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		InsightsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcore_threat_insights_total",
				Help: "Total insights produced by the threat engine, by kind and severity.",
			},
			[]string{"kind", "severity"},
		),
		IngestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultcore_threat_ingest_duration_seconds",
				Help:    "Duration of a single event's real-time detector pipeline.",
				Buckets: prometheus.DefBuckets,
			},
		),
		BufferOverruns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcore_threat_buffer_overruns_total",
				Help: "Count of BUFFER_OVERRUN evictions, by entity ring.",
			},
			[]string{"entity_id"},
		),
		BaselineMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcore_threat_baseline_unavailable_total",
				Help: "Count of detections downgraded to pattern-only for lack of a usable baseline.",
			},
			[]string{"entity_id"},
		),
		BroadcastsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultcore_threat_broadcasts_total",
				Help: "Total high-risk insights broadcast to external subscribers.",
			},
		),
		BatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultcore_threat_batch_duration_seconds",
				Help:    "Duration of a batch baseline recompute pass.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
	}
}

func (m *Metrics) recordInsight(kind, severity string) {
	if m == nil {
		return
	}
	m.InsightsTotal.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) recordOverrun(entityID string) {
	if m == nil {
		return
	}
	m.BufferOverruns.WithLabelValues(entityID).Inc()
}

func (m *Metrics) recordBaselineMiss(entityID string) {
	if m == nil {
		return
	}
	m.BaselineMisses.WithLabelValues(entityID).Inc()
}

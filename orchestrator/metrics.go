package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Orchestrator's Prometheus instrumentation, grounded
// on threat.Metrics's promauto-registered per-stage-latency shape.
type Metrics struct {
	SubmitDuration *prometheus.HistogramVec
	OutcomesTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers the Orchestrator's metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SubmitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultcore_orchestrator_submit_duration_seconds",
				Help:    "Duration of one Orchestrator.Submit pipeline run, by operation kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_kind"},
		),
		OutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcore_orchestrator_outcomes_total",
				Help: "Total Orchestrator.Submit calls, by operation kind and outcome.",
			},
			[]string{"operation_kind", "outcome"},
		),
	}
}

func (m *Metrics) recordSubmit(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.SubmitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	activations *prometheus.CounterVec
	corrections *prometheus.CounterVec
	escalations prometheus.Counter
	workflows   *prometheus.HistogramVec
}

// NewMetrics registers the orchestrator collectors with reg. A nil reg
// yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		activations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appbuilder_agent_activations_total",
			Help: "Agent activations by resulting task status",
		}, []string{"agent", "status"}),
		corrections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appbuilder_correction_cycles_total",
			Help: "Correction cycles started, by trigger",
		}, []string{"trigger"}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "appbuilder_escalations_total",
			Help: "Projects escalated to human intervention",
		}),
		workflows: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appbuilder_workflow_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
	}
}

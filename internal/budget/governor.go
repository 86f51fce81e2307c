// Package budget guards the cumulative LLM spend of a project.
package budget

import (
	"context"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kazz187/appbuilder/internal/project"
)

type Metrics struct {
	spend  *prometheus.CounterVec
	denied *prometheus.CounterVec
}

// NewMetrics registers the budget collectors with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		spend: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appbuilder_llm_cost_total",
			Help: "Total LLM spend recorded per project",
		}, []string{"project_id"}),
		denied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appbuilder_budget_denials_total",
			Help: "Activations refused because the cost ceiling was reached",
		}, []string{"project_id"}),
	}
}

type Governor struct {
	ceiling float64
	nominal float64
	metrics *Metrics
}

func NewGovernor(ceiling, nominal float64, metrics *Metrics) *Governor {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Governor{ceiling: ceiling, nominal: nominal, metrics: metrics}
}

// Allow denies once the ledger has reached the ceiling. It never spends.
func (g *Governor) Allow(ctx context.Context, projectID string, st *project.State) bool {
	if st.CurrentLLMCost >= g.ceiling {
		g.metrics.denied.WithLabelValues(projectID).Inc()
		slog.WarnContext(ctx, "llm cost limit reached", "cost", st.CurrentLLMCost, "ceiling", g.ceiling)
		return false
	}
	return true
}

// Record adds the reported cost, or the nominal cost when the remote reported
// none, and returns the amount added. Negative or non-finite reports add
// nothing.
func (g *Governor) Record(ctx context.Context, projectID string, st *project.State, cost float64, reported bool) float64 {
	if !reported {
		cost = g.nominal
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		slog.WarnContext(ctx, "ignoring invalid reported cost", "cost", cost)
		return 0
	}
	st.AddCost(cost)
	g.metrics.spend.WithLabelValues(projectID).Add(cost)
	return cost
}

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockwright"

var (
	MovementsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "movements_recorded_total",
		Help:      "Ledger movements appended, by direction and source.",
	}, []string{"direction", "source"})

	WorkOrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "work_order_transitions_total",
		Help:      "Work order status changes, by origin and target status.",
	}, []string{"from", "to"})

	StockWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_warnings_total",
		Help:      "Non-blocking stock warnings returned to callers, by stage.",
	}, []string{"stage"})

	RecomputeRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recompute_runs_total",
		Help:      "Stock snapshot recomputation passes started.",
	})

	RecomputeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recompute_material_failures_total",
		Help:      "Materials whose snapshot could not be recomputed.",
	})

	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recompute_duration_seconds",
		Help:      "Wall time of a full recomputation pass.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Resolution Prometheus metrics.
var (
	ResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "resolve_total",
			Help:      "Total number of resolutions by terminal stage",
		},
		[]string{"stage"}, // "full", "relaxed_1", "relaxed_2", "unfiltered", "no_signal", "empty"
	)

	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "findex",
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end resolution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	RetrievalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "findex",
			Name:      "retrieval_errors_total",
			Help:      "Per-space retrieval failures degraded to empty hit lists",
		},
		[]string{"space"},
	)
)

var resolveMetricsRegistered bool

// RegisterResolveMetrics registers resolution metrics. Must be called once from main.
func RegisterResolveMetrics() {
	if resolveMetricsRegistered {
		return
	}
	prometheus.MustRegister(ResolveTotal)
	prometheus.MustRegister(ResolveDuration)
	prometheus.MustRegister(RetrievalErrorsTotal)
	resolveMetricsRegistered = true
}

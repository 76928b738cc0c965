package metrics

import "github.com/prometheus/client_golang/prometheus"

// Matching pipeline Prometheus metrics.
var (
	MatchDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepmatch",
			Name:      "match_decisions_total",
			Help:      "Final match decisions by action",
		},
		[]string{"action"}, // "REUSED_TEMPLATE" / "NEW_BDD_REQUIRED"
	)

	MatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stepmatch",
			Name:      "match_duration_seconds",
			Help:      "End-to-end chunk matching duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RerankSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepmatch",
			Name:      "rerank_skips_total",
			Help:      "Rerank stage skips by triggering condition",
		},
		[]string{"reason"},
	)

	RerankRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepmatch",
			Name:      "rerank_requests_total",
			Help:      "Cross-encoder rerank requests",
		},
		[]string{"status"},
	)

	FallbackStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepmatch",
			Name:      "fallback_stages_total",
			Help:      "Fallback chain outcomes by resolving stage",
		},
		[]string{"stage"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers matching pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(MatchDecisionsTotal)
	prometheus.MustRegister(MatchDuration)
	prometheus.MustRegister(RerankSkipsTotal)
	prometheus.MustRegister(RerankRequestsTotal)
	prometheus.MustRegister(FallbackStagesTotal)
	pipelineMetricsRegistered = true
}

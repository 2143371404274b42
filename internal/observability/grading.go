package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gradingOnce          sync.Once
	gradingCacheLookups  *prometheus.CounterVec
	gradingGateInFlight  prometheus.Gauge
	gradingAttemptsTotal *prometheus.CounterVec
	gradingResultsTotal  *prometheus.CounterVec
	gradingDuration      prometheus.Histogram
)

// RegisterGradingMetrics initialises the collectors used by the grading pipeline.
func RegisterGradingMetrics() {
	gradingOnce.Do(func() {
		gradingCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "grading",
			Name:      "cache_lookups_total",
			Help:      "Grading cache lookups by tier and outcome.",
		}, []string{"tier", "outcome"})

		gradingGateInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gema",
			Subsystem: "grading",
			Name:      "gate_in_flight",
			Help:      "Generator calls currently holding an admission slot.",
		})

		gradingAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "grading",
			Name:      "attempts_total",
			Help:      "Generator attempts by outcome.",
		}, []string{"outcome"})

		gradingResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "grading",
			Name:      "results_total",
			Help:      "Grading results by outcome.",
		}, []string{"outcome"})

		gradingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gema",
			Subsystem: "grading",
			Name:      "evaluate_duration_seconds",
			Help:      "End-to-end latency of grading evaluations.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 40},
		})

		prometheus.MustRegister(gradingCacheLookups, gradingGateInFlight, gradingAttemptsTotal, gradingResultsTotal, gradingDuration)
	})
}

// GradingCacheLookups counts cache lookups labelled by tier (memory, shared) and outcome (hit, miss).
func GradingCacheLookups() *prometheus.CounterVec {
	RegisterGradingMetrics()
	return gradingCacheLookups
}

// GradingGateInFlight tracks admission gate occupancy.
func GradingGateInFlight() prometheus.Gauge {
	RegisterGradingMetrics()
	return gradingGateInFlight
}

// GradingAttempts counts generator attempts.
func GradingAttempts() *prometheus.CounterVec {
	RegisterGradingMetrics()
	return gradingAttemptsTotal
}

// GradingResults counts evaluation outcomes.
func GradingResults() *prometheus.CounterVec {
	RegisterGradingMetrics()
	return gradingResultsTotal
}

// GradingDuration observes evaluation latency.
func GradingDuration() prometheus.Histogram {
	RegisterGradingMetrics()
	return gradingDuration
}

package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generate_duration_seconds",
		Help:      "Duration of text generation requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider", "model"})

	generateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generate_failures_total",
		Help:      "Number of failed text generation requests",
	}, []string{"provider", "model", "reason"})
)

func failureReason(err error) string {
	if IsResourceExhausted(err) {
		return "resource_exhausted"
	}
	return "error"
}

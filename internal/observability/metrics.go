// Package observability provides Prometheus metrics for the rexecd server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RunBuckets covers generate-and-execute cycles from sub-second one-shot
// successes up to multi-attempt worst cases.
var RunBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RunsTotal counts completed task runs by terminal state.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rexec_runs_total",
			Help: "Completed task runs",
		},
		[]string{"result"},
	)

	// RunDuration records the wall-clock duration of a full task run.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rexec_run_duration_seconds",
			Help:    "Task run duration",
			Buckets: RunBuckets,
		},
	)

	// AttemptsTotal counts generate-execute attempts by outcome.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rexec_attempts_total",
			Help: "Generate-execute attempts",
		},
		[]string{"outcome"},
	)

	// GenerationLatency records model completion latency in seconds.
	GenerationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rexec_generation_latency_seconds",
			Help:    "Model completion latency",
			Buckets: RunBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		AttemptsTotal,
		GenerationLatency,
	)
}

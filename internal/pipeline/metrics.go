package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metric names follow the keda/webhook Prometheus convention in the
// retrieved corpus (namespace/subsystem/name + Help, registered once in
// init, incremented from plain helper calls).
const metricsNamespace = "gridcast"

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage execution.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "outcome"},
	)
	stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions by outcome.",
		},
		[]string{"stage", "outcome"},
	)
	cycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "cycle_outcomes_total",
			Help:      "Total number of pipeline cycles by final outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(stageDuration, stageRuns, cycleOutcomes)
}

func recordStage(stage, outcome string, seconds float64) {
	stageDuration.WithLabelValues(stage, outcome).Observe(seconds)
	stageRuns.WithLabelValues(stage, outcome).Inc()
}

func recordCycle(outcome string) {
	cycleOutcomes.WithLabelValues(outcome).Inc()
}

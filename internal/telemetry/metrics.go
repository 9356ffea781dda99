package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hydrosim"

var (
	// UnitRuns counts unit executions.
	// Labels: unit, kind (bucket, route, model), status (ok, error, failed)
	UnitRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "runs_total",
		Help:      "Total unit runs by outcome",
	}, []string{"unit", "kind", "status"})

	// UnitRunDuration measures wall time of one unit run.
	UnitRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "run_duration_seconds",
		Help:      "Unit run latency in seconds",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})

	// SolverFailures counts runs whose stepper did not converge.
	// Labels: stepper
	SolverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "failures_total",
		Help:      "Total stepper failures converted to flagged trajectories",
	}, []string{"stepper"})

	// CompileCache counts compile cache lookups.
	// Labels: result (hit, miss, bypass)
	CompileCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compile",
		Name:      "cache_lookups_total",
		Help:      "Compile cache lookups by result",
	}, []string{"result"})
)

// WriteMetrics dumps the default registry to path in the node exporter
// textfile format.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

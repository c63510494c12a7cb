package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstancesDiscoveredTotal counts instances returned by discovery, by location.
	InstancesDiscoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetop_instances_discovered_total",
			Help: "Total number of instances discovered, by location",
		},
		[]string{"location"},
	)

	// OperationResultsTotal counts per-instance outcomes, by operation and status.
	OperationResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetop_operation_results_total",
			Help: "Total number of per-instance operation results, by operation and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks wall time for a single instance's execution.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetop_operation_duration_seconds",
			Help:    "Duration of a per-instance upgrade/rollback operation in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"operation"},
	)

	// TrackerRetriesTotal counts transient-error retries inside the operation tracker.
	TrackerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetop_tracker_retries_total",
			Help: "Total number of transient-error retries observed while polling an operation",
		},
		[]string{"error_kind"},
	)

	// PollDuration tracks how long a single operation tracker wait took end to end.
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetop_poll_duration_seconds",
			Help:    "Time spent polling a single long-running operation to completion",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CompensationsTotal counts automatic rollbacks triggered by a failed upgrade.
	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetop_compensations_total",
			Help: "Total number of compensating rollbacks triggered after a failed upgrade, by outcome",
		},
		[]string{"outcome"},
	)

	// InFlightWorkers reports the current number of active per-instance executors.
	InFlightWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetop_inflight_workers",
			Help: "Current number of in-flight per-instance executor workers",
		},
	)

	// BreakerStateChangesTotal counts circuit breaker state transitions in the HTTP adapter.
	BreakerStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetop_breaker_state_changes_total",
			Help: "Total number of InstanceService circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	// RunDuration tracks total wall time for a fleet run.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetop_run_duration_seconds",
			Help:    "Total wall-clock duration of a fleet run",
			Buckets: []float64{5, 15, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesDiscoveredTotal,
		OperationResultsTotal,
		OperationDuration,
		TrackerRetriesTotal,
		PollDuration,
		CompensationsTotal,
		InFlightWorkers,
		BreakerStateChangesTotal,
		RunDuration,
	)
}

// Handler returns the Prometheus HTTP handler, for consumers that expose a
// scrape endpoint alongside the engine.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a /metrics HTTP server in the background on addr, mirroring
// the teacher's cmd/warren fire-and-forget metrics goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Package metrics provides Prometheus instrumentation for fleetop fleet runs.
//
// Metrics are updated live as the run progresses (tracker retries and poll
// durations, in-flight worker count, breaker state changes, per-instance
// results and compensations) and once more when the engine finishes a run
// (instances discovered, run duration), but the authoritative FleetReport.statistics are always derived by a pure
// function over the final []OperationResult — never by reading these
// counters back. The two views can disagree only in ways that are expected:
// these metrics also capture activity from runs whose report was never
// written (e.g. the process was killed mid-run).
package metrics

// Package engine wires the fleet engine's components into the single
// upward entry point described in spec §6: discovery through the
// scheduler, per-instance execution through the executor, and the final
// report. Grounded in the teacher's explicit-parameter Design Note (no
// package-level singletons) rather than a long-lived struct with hidden
// state.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/executor"
	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/health"
	"github.com/cuemby/fleetop/pkg/log"
	"github.com/cuemby/fleetop/pkg/metrics"
	"github.com/cuemby/fleetop/pkg/scheduler"
	"github.com/cuemby/fleetop/pkg/tracker"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Run validates cfg, discovers and dispatches across every requested
// location, and returns the completed FleetReport. It never panics: a
// config validation failure or a discovery-time provider error comes back
// as a plain error, and every per-instance failure is folded into the
// report's results instead.
func Run(ctx context.Context, cfg types.RunConfig, svc fleetsvc.Service, clk clock.Clock, logger zerolog.Logger) (*types.FleetReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", types.ErrorConfigInvalid, err)
	}
	cfg.Locations = types.DedupeLocations(cfg.Locations)

	runID := uuid.New().String()
	logger = logger.With().Str("run_id", runID).Logger()
	runLog := log.WithRun(runID)

	started := clk.Now()
	logger.Info().
		Str("operation", string(cfg.Operation)).
		Str("project", cfg.Project).
		Strs("locations", cfg.Locations).
		Bool("dryRun", cfg.DryRun).
		Msg("fleet run starting")

	trk := tracker.New(svc, clk, nil)
	verifier := health.New(svc, clk)
	exec := executor.New(svc, trk, verifier, clk)

	sched := scheduler.New(svc, func(ctx context.Context, snap types.InstanceSnapshot) types.OperationResult {
		instLog := runLog.With().Str("instance", snap.ShortName).Str("location", snap.Location).Logger()
		result := exec.Run(ctx, cfg, snap)
		recordResult(instLog, result)
		return result
	})

	results, message, err := sched.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover fleet: %w", err)
	}

	finished := clk.Now()
	report := &types.FleetReport{
		StartedAt:       started,
		FinishedAt:      finished,
		DurationSeconds: finished.Sub(started).Seconds(),
		Config:          cfg.View(),
		Statistics:      types.ComputeStatistics(results),
		Results:         results,
		Message:         message,
	}

	metrics.RunDuration.Observe(report.DurationSeconds)
	byLocation := map[string]int{}
	for _, r := range results {
		byLocation[r.Location]++
	}
	for location, count := range byLocation {
		metrics.InstancesDiscoveredTotal.WithLabelValues(location).Add(float64(count))
	}

	logger.Info().
		Int("total", report.Statistics.Total).
		Int("succeeded", report.Statistics.Succeeded).
		Int("failed", report.Statistics.Failed).
		Int("compensated", report.Statistics.Compensated).
		Float64("durationSeconds", report.DurationSeconds).
		Msg("fleet run complete")

	return report, nil
}

func recordResult(instLog zerolog.Logger, result types.OperationResult) {
	metrics.OperationResultsTotal.WithLabelValues(string(result.Operation), string(result.Status)).Inc()
	metrics.OperationDuration.WithLabelValues(string(result.Operation)).Observe(result.DurationSeconds)
	if result.Status == types.ResultCompensated {
		metrics.CompensationsTotal.WithLabelValues("succeeded").Inc()
	} else if strings.Contains(result.ErrorMessage, "compensation_error:") {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
	}

	ev := instLog.Info()
	if result.Status == types.ResultFailed {
		ev = instLog.Error()
	}
	ev.Str("status", string(result.Status)).
		Str("errorKind", string(result.ErrorKind)).
		Float64("durationSeconds", result.DurationSeconds).
		Msg("instance run complete")
}

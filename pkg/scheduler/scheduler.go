// Package scheduler discovers candidate instances across locations and
// dispatches per-instance workers under a bounded concurrency envelope,
// the same responsibility the teacher's scheduler has over containers and
// nodes, rebuilt here around remote instance discovery instead of local
// bin-packing.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/fleetop/pkg/log"
	"github.com/cuemby/fleetop/pkg/metrics"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Lister is the subset of fleetsvc.Service the scheduler needs for
// discovery. Kept narrow so tests can supply a minimal fake.
type Lister interface {
	List(ctx context.Context, project, location string) ([]types.InstanceSnapshot, error)
}

// ExecuteFunc runs the per-instance executor state machine to completion
// and returns its result. Implementations are responsible for observing
// ctx cancellation and reporting a CANCELLED result rather than blocking
// forever.
type ExecuteFunc func(ctx context.Context, snap types.InstanceSnapshot) types.OperationResult

// Scheduler discovers instances and dispatches workers.
type Scheduler struct {
	Service Lister
	Execute ExecuteFunc
	logger  zerolog.Logger
}

// New builds a Scheduler.
func New(svc Lister, execute ExecuteFunc) *Scheduler {
	return &Scheduler{Service: svc, Execute: execute, logger: log.WithComponent("scheduler")}
}

// Run discovers candidates per cfg.Locations, dispatches at most
// cfg.MaxParallel concurrent workers paced by cfg.StaggerDelay, and
// returns the aggregated results sorted by (location, shortName). message
// is set when discovery found nothing to do.
func (s *Scheduler) Run(ctx context.Context, cfg types.RunConfig) (results []types.OperationResult, message string, err error) {
	candidates, skipped, err := s.discover(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	if len(candidates) == 0 {
		msg := "no matching instances found"
		if cfg.Instance != nil {
			msg = fmt.Sprintf("no instance matching %q found in any of the requested locations", *cfg.Instance)
		}
		return skipped, msg, nil
	}

	dispatched := s.dispatch(ctx, cfg, candidates)
	all := append(skipped, dispatched...)

	sort.Slice(all, func(i, j int) bool {
		if all[i].Location != all[j].Location {
			return all[i].Location < all[j].Location
		}
		return all[i].Instance < all[j].Instance
	})
	return all, "", nil
}

// discover implements steps 1 and 2 of the fleet scheduling algorithm:
// per-location listing filtered to a single instance if requested, then
// admission of only recognised states. Unrecognised states are returned
// as pre-built SKIPPED(INELIGIBLE) results rather than dispatched.
func (s *Scheduler) discover(ctx context.Context, cfg types.RunConfig) (candidates []types.InstanceSnapshot, skipped []types.OperationResult, err error) {
	for _, location := range cfg.Locations {
		instances, listErr := s.Service.List(ctx, cfg.Project, location)
		if listErr != nil {
			return nil, nil, fmt.Errorf("list instances in %s: %w", location, listErr)
		}
		for _, snap := range instances {
			if cfg.Instance != nil && snap.ShortName != *cfg.Instance {
				continue
			}
			if snap.State == types.InstanceStateUnknown {
				skipped = append(skipped, types.OperationResult{
					Instance:     snap.ShortName,
					Location:     snap.Location,
					Operation:    cfg.Operation,
					Status:       types.ResultSkipped,
					ErrorKind:    types.ErrorIneligible,
					ErrorMessage: "instance reports a state unrecognised by this engine",
				})
				continue
			}
			candidates = append(candidates, snap)
		}
	}
	return candidates, skipped, nil
}

// dispatch runs at most cfg.MaxParallel executors concurrently, pacing the
// start of each new worker by cfg.StaggerDelay since the previous
// dispatch. Once ctx is cancelled, no further workers are started; every
// candidate not yet dispatched is instead emitted as a synthetic
// FAILED(CANCELLED) result so the completeness invariant holds (spec §8
// property 1, §8 scenario 5). Workers already running are left to finish
// on their own (they observe ctx themselves and report CANCELLED).
//
// A worker reporting AUTH_FAILED is treated as fatal for the whole run
// (spec §7): every instance not yet dispatched is short-circuited to
// SKIPPED(AUTH_FAILED) instead of being handed to the executor.
func (s *Scheduler) dispatch(ctx context.Context, cfg types.RunConfig, candidates []types.InstanceSnapshot) []types.OperationResult {
	limiter := rate.NewLimiter(rate.Every(cfg.StaggerDelay), 1)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.MaxParallel)

	var mu sync.Mutex
	var results []types.OperationResult
	var authFailed atomic.Bool

	markCancelled := func(remaining []types.InstanceSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		for _, snap := range remaining {
			results = append(results, types.OperationResult{
				Instance:     snap.ShortName,
				Location:     snap.Location,
				Operation:    cfg.Operation,
				Status:       types.ResultFailed,
				ErrorKind:    types.ErrorCancelled,
				ErrorMessage: "skipped: run was cancelled before this instance was dispatched",
			})
		}
	}

	for i, snap := range candidates {
		snap := snap
		// Wait before every dispatch, including the first: the limiter
		// starts with a single burst token, so the first Wait drains it
		// immediately and each subsequent dispatch is paced by
		// cfg.StaggerDelay (spec §8 property 5).
		if err := limiter.Wait(ctx); err != nil {
			markCancelled(candidates[i:])
			break
		}
		if ctx.Err() != nil {
			markCancelled(candidates[i:])
			break
		}
		if authFailed.Load() {
			mu.Lock()
			results = append(results, types.OperationResult{
				Instance:     snap.ShortName,
				Location:     snap.Location,
				Operation:    cfg.Operation,
				Status:       types.ResultSkipped,
				ErrorKind:    types.ErrorAuthFailed,
				ErrorMessage: "skipped: a prior instance in this run failed authentication",
			})
			mu.Unlock()
			continue
		}

		group.Go(func() error {
			metrics.InFlightWorkers.Inc()
			defer metrics.InFlightWorkers.Dec()
			result := s.Execute(gctx, snap)
			if result.ErrorKind == types.ErrorAuthFailed {
				authFailed.Store(true)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()
	return results
}

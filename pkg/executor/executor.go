// Package executor implements the per-instance state machine (spec
// component E): normalise, preflight, execute the mutation, track it to
// completion, verify health, and optionally compensate on failure. Each
// call to Run produces exactly one OperationResult, never an error —
// internal failures are themselves folded into the result, the same
// total-function discipline pkg/eligibility uses for its pure checks.
package executor

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/eligibility"
	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/health"
	"github.com/cuemby/fleetop/pkg/log"
	"github.com/cuemby/fleetop/pkg/tracker"
	"github.com/cuemby/fleetop/pkg/types"
)

// state names the internal phase of one instance's run, used only for
// logging.
type state string

const (
	stateReady        state = "READY"
	stateExecuting    state = "EXECUTING"
	stateCompensating state = "COMPENSATING"
)

// Executor runs the per-instance state machine.
type Executor struct {
	Service  fleetsvc.Service
	Tracker  *tracker.Tracker
	Verifier *health.Verifier
	Clock    clock.Clock
}

// New builds an Executor.
func New(svc fleetsvc.Service, trk *tracker.Tracker, verifier *health.Verifier, clk clock.Clock) *Executor {
	return &Executor{Service: svc, Tracker: trk, Verifier: verifier, Clock: clk}
}

// Run drives snap through the full lifecycle described in spec §4.E and
// returns the one OperationResult it produces. ctx carries the run's
// cooperative cancellation signal.
func (e *Executor) Run(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot) types.OperationResult {
	logger := log.WithInstance(snap.Name)
	started := e.Clock.Now()

	result := types.OperationResult{
		Instance:  snap.ShortName,
		Location:  snap.Location,
		Operation: cfg.Operation,
		StartedAt: started,
	}

	finish := func(status types.ResultStatus, errKind types.ErrorKind, errMessage string, compensated bool, checks []types.Check) types.OperationResult {
		finished := e.Clock.Now()
		result.Status = status
		result.ErrorKind = errKind
		result.ErrorMessage = errMessage
		result.Compensated = compensated
		result.PreChecks = checks
		result.FinishedAt = finished
		result.DurationSeconds = finished.Sub(started).Seconds()
		return result
	}

	if ctx.Err() != nil {
		return finish(types.ResultFailed, types.ErrorCancelled, "cancelled before dispatch", false, nil)
	}

	current, wouldStart, normErr := e.normalise(ctx, cfg, snap)
	if normErr != nil {
		kind, msg := fleetsvc.Classify(normErr)
		if kind == types.ErrorPreconditionViolated || kind == types.ErrorTransient {
			return finish(types.ResultSkipped, types.ErrorBusy, msg, false, nil)
		}
		return finish(types.ResultFailed, kind, msg, false, nil)
	}
	if current.State != types.InstanceStateActive && !wouldStart {
		return finish(types.ResultSkipped, types.ErrorBusy, "instance settled in a non-startable, non-active state: "+string(current.State), false, nil)
	}

	logger.Debug().Str("state", string(stateReady)).Msg("normalisation complete")

	switch cfg.Operation {
	case types.OperationUpgrade:
		return e.runUpgrade(ctx, cfg, current, finish)
	case types.OperationRollback:
		return e.runRollback(ctx, cfg, current, wouldStart, finish)
	default:
		return finish(types.ResultFailed, types.ErrorUnexpected, "unknown operation: "+string(cfg.Operation), false, nil)
	}
}

type finishFunc func(status types.ResultStatus, errKind types.ErrorKind, errMessage string, compensated bool, checks []types.Check) types.OperationResult

// normalise implements the DISCOVERED -> READY transition. In dry-run it
// never mutates: a STOPPED/SUSPENDED instance is reported as such (with
// wouldStart = true) and the caller sees the original snapshot. Outside
// dry-run, a STOPPED/SUSPENDED instance is started and tracked to ACTIVE.
func (e *Executor) normalise(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot) (types.InstanceSnapshot, bool, error) {
	if snap.State == types.InstanceStateActive {
		return snap, false, nil
	}
	startable := snap.State == types.InstanceStateStopped || snap.State == types.InstanceStateSuspended
	if !startable {
		return snap, false, nil
	}
	if cfg.DryRun {
		return snap, true, nil
	}

	handle, err := e.Service.Start(ctx, snap.Name)
	if err != nil {
		return snap, false, err
	}
	if errKind, errMsg, _ := e.Tracker.Wait(ctx, handle, cfg.OperationTimeout, cfg.PollInterval); errKind != "" {
		msg := "failed to start instance before normalisation"
		if errMsg != "" {
			msg += ": " + errMsg
		}
		return snap, false, fleetsvc.NewError(errKind, msg, nil)
	}
	fresh, err := e.Service.Get(ctx, snap.Name)
	if err != nil {
		return snap, false, err
	}
	return fresh, false, nil
}

func (e *Executor) runUpgrade(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot, finish finishFunc) types.OperationResult {
	upgradable, targetVersion, err := e.Service.CheckUpgradable(ctx, snap.Name)
	if err != nil {
		kind, msg := fleetsvc.Classify(err)
		return finish(types.ResultFailed, kind, msg, false, nil)
	}
	if !upgradable {
		result := finish(types.ResultUpToDate, "", "", false, nil)
		return result
	}
	if cfg.DryRun {
		result := finish(types.ResultDryRun, "", "", false, nil)
		result.TargetVersion = targetVersion
		return result
	}

	handle, err := e.Service.BeginUpgrade(ctx, snap.Name)
	if err != nil {
		kind, msg := fleetsvc.Classify(err)
		if kind == types.ErrorPreconditionViolated {
			return finish(types.ResultSkipped, types.ErrorBusy, "another controller appears to have raced us: "+msg, false, nil)
		}
		return finish(types.ResultFailed, kind, msg, false, nil)
	}

	log.WithInstance(snap.Name).Debug().Str("state", string(stateExecuting)).Msg("upgrade begun")
	result, _ := e.trackAndVerify(ctx, cfg, snap, handle)
	result.TargetVersion = targetVersion
	if result.Status == types.ResultSucceeded {
		return result
	}

	if result.Status == types.ResultFailed && cfg.RollbackOnFailure && result.ErrorKind != types.ErrorCancelled {
		log.WithInstance(snap.Name).Debug().Str("state", string(stateCompensating)).Msg("attempting compensation")
		return e.compensate(ctx, cfg, snap, result)
	}
	return result
}

func (e *Executor) runRollback(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot, wouldStart bool, finish finishFunc) types.OperationResult {
	eligible, checks := eligibility.Evaluate(snap, e.Clock.Now(), wouldStart)
	if !eligible {
		return finish(types.ResultSkipped, types.ErrorIneligible, "rollback eligibility checks failed", false, checks)
	}
	if cfg.DryRun {
		result := finish(types.ResultDryRun, "", "", false, checks)
		result.TargetVersion = snap.PreviousVersion
		return result
	}

	handle, err := e.Service.BeginRollback(ctx, snap.Name)
	if err != nil {
		kind, msg := fleetsvc.Classify(err)
		if kind == types.ErrorPreconditionViolated {
			return finish(types.ResultSkipped, types.ErrorBusy, "another controller appears to have raced us: "+msg, false, checks)
		}
		return finish(types.ResultFailed, kind, msg, false, checks)
	}

	result, _ := e.trackAndVerify(ctx, cfg, snap, handle)
	result.TargetVersion = snap.PreviousVersion
	result.PreChecks = checks
	return result
}

// trackAndVerify implements EXECUTING -> VERIFYING -> {SUCCEEDED,
// FAILED_POST, FAILED_MID}. failedMid reports whether the operation failed
// during tracking (as opposed to failing health verification afterward) —
// both degrade to the same ResultFailed status, and the current callers
// ignore the distinction: runUpgrade compensates either kind alike.
func (e *Executor) trackAndVerify(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot, handle types.OperationHandle) (types.OperationResult, bool) {
	started := e.Clock.Now()
	result := types.OperationResult{
		Instance:  snap.ShortName,
		Location:  snap.Location,
		Operation: cfg.Operation,
		StartedAt: started,
	}
	stamp := func(status types.ResultStatus, errKind types.ErrorKind, errMessage string) types.OperationResult {
		finished := e.Clock.Now()
		result.Status = status
		result.ErrorKind = errKind
		result.ErrorMessage = errMessage
		result.FinishedAt = finished
		result.DurationSeconds = finished.Sub(started).Seconds()
		return result
	}

	if errKind, errMsg, _ := e.Tracker.Wait(ctx, handle, cfg.OperationTimeout, cfg.PollInterval); errKind != "" {
		if errMsg == "" {
			errMsg = "operation did not complete successfully"
		}
		return stamp(types.ResultFailed, errKind, errMsg), true
	}

	if err := e.Verifier.PollUntilHealthy(ctx, snap.Name, cfg.PollInterval, cfg.HealthCheckTimeout); err != nil {
		return stamp(types.ResultFailed, types.ErrorUnexpected, fmt.Sprintf("post-operation health check failed: %v", err)), false
	}

	return stamp(types.ResultSucceeded, "", ""), false
}

// compensate implements FAILED_MID|FAILED_POST -> COMPENSATING for a
// failed UPGRADE with rollbackOnFailure set. The instance is re-read and
// the fresh snapshot, not the discovery-time one, is evaluated for
// rollback eligibility, since the instance's metadata may have changed
// since discovery.
func (e *Executor) compensate(ctx context.Context, cfg types.RunConfig, snap types.InstanceSnapshot, failed types.OperationResult) types.OperationResult {
	fresh, err := e.Service.Get(ctx, snap.Name)
	if err != nil {
		failed.ErrorMessage += "; compensation_error: could not re-read instance: " + err.Error()
		return failed
	}

	eligible, checks := eligibility.Evaluate(fresh, e.Clock.Now(), false)
	if !eligible {
		failed.ErrorMessage += "; compensation_error: instance is not eligible for rollback"
		failed.PreChecks = checks
		return failed
	}

	handle, err := e.Service.BeginRollback(ctx, snap.Name)
	if err != nil {
		_, msg := fleetsvc.Classify(err)
		failed.ErrorMessage += "; compensation_error: " + msg
		failed.PreChecks = checks
		return failed
	}

	compResult, _ := e.trackAndVerify(ctx, cfg, snap, handle)
	if compResult.Status != types.ResultSucceeded {
		failed.ErrorMessage += "; compensation_error: " + compResult.ErrorMessage
		failed.PreChecks = checks
		return failed
	}

	failed.Status = types.ResultCompensated
	failed.Compensated = true
	failed.PreChecks = checks
	failed.FinishedAt = compResult.FinishedAt
	failed.DurationSeconds = failed.FinishedAt.Sub(failed.StartedAt).Seconds()
	return failed
}

// Package eligibility implements the rollback eligibility evaluator: a
// total, pure function over an instance snapshot and the current time,
// producing a pass/fail verdict with named diagnostic sub-checks. It
// performs no I/O, the way the teacher's pure decision-table helpers in
// pkg/scheduler do their bin-packing math without touching the network.
package eligibility

import (
	"time"

	"github.com/cuemby/fleetop/pkg/types"
)

const (
	CheckInstanceState   = "instance_state"
	CheckUpgradeHistory  = "upgrade_history"
	CheckPreviousVersion = "previous_version"
	CheckRollbackWindow  = "rollback_window"
)

// Evaluate runs the four named checks, in fixed order, against snap as
// observed at now. Later checks always run even when an earlier one fails,
// so the caller gets full diagnostic output; eligible is the conjunction of
// all four verdicts. Evaluate never panics and never performs I/O: it is a
// total function over its inputs.
//
// wouldStart is true when the instance is currently STOPPED or SUSPENDED
// and the caller is running dry-run (normalisation was skipped per the
// executor's dry-run rule); in that case instance_state is reported
// SKIPPED rather than FAIL or PASS, since the real run would have started
// the instance first.
func Evaluate(snap types.InstanceSnapshot, now time.Time, wouldStart bool) (bool, []types.Check) {
	checks := make([]types.Check, 0, 4)
	eligible := true

	instanceStateCheck, instanceStatePass := evaluateInstanceState(snap, wouldStart)
	checks = append(checks, instanceStateCheck)
	eligible = eligible && instanceStatePass

	upgradeHistoryCheck, upgradeHistoryPass := evaluateUpgradeHistory(snap)
	checks = append(checks, upgradeHistoryCheck)
	eligible = eligible && upgradeHistoryPass

	previousVersionCheck, previousVersionPass := evaluatePreviousVersion(snap)
	checks = append(checks, previousVersionCheck)
	eligible = eligible && previousVersionPass

	rollbackWindowCheck, rollbackWindowPass := evaluateRollbackWindow(snap, now)
	checks = append(checks, rollbackWindowCheck)
	eligible = eligible && rollbackWindowPass

	return eligible, checks
}

func evaluateInstanceState(snap types.InstanceSnapshot, wouldStart bool) (types.Check, bool) {
	if wouldStart {
		return types.Check{
			Name:    CheckInstanceState,
			Verdict: types.VerdictSkipped,
			Message: "would be started before rollback",
		}, true
	}
	if snap.State == types.InstanceStateActive {
		return types.Check{Name: CheckInstanceState, Verdict: types.VerdictPass}, true
	}
	return types.Check{
		Name:    CheckInstanceState,
		Verdict: types.VerdictFail,
		Message: "instance is not ACTIVE: " + string(snap.State),
	}, false
}

func evaluateUpgradeHistory(snap types.InstanceSnapshot) (types.Check, bool) {
	if snap.LastUpgradeAt != nil {
		return types.Check{Name: CheckUpgradeHistory, Verdict: types.VerdictPass}, true
	}
	return types.Check{
		Name:    CheckUpgradeHistory,
		Verdict: types.VerdictFail,
		Message: "instance has no recorded upgrade to roll back",
	}, false
}

func evaluatePreviousVersion(snap types.InstanceSnapshot) (types.Check, bool) {
	if snap.PreviousVersion != "" {
		return types.Check{Name: CheckPreviousVersion, Verdict: types.VerdictPass}, true
	}
	return types.Check{
		Name:    CheckPreviousVersion,
		Verdict: types.VerdictFail,
		Message: "no previous version recorded",
	}, false
}

func evaluateRollbackWindow(snap types.InstanceSnapshot, now time.Time) (types.Check, bool) {
	if snap.RollbackWindowExpiresAt == nil || snap.RollbackWindowExpiresAt.After(now) {
		return types.Check{Name: CheckRollbackWindow, Verdict: types.VerdictPass}, true
	}
	return types.Check{
		Name:    CheckRollbackWindow,
		Verdict: types.VerdictFail,
		Message: "rollback window expired at " + snap.RollbackWindowExpiresAt.Format(time.RFC3339),
	}, false
}

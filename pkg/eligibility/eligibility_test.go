package eligibility

import (
	"testing"
	"time"

	"github.com/cuemby/fleetop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSnapshot(now time.Time) types.InstanceSnapshot {
	lastUpgrade := now.Add(-time.Hour)
	expiry := now.Add(time.Hour)
	return types.InstanceSnapshot{
		Name:                    "projects/p/locations/us-central1-a/instances/i1",
		ShortName:               "i1",
		Location:                "us-central1-a",
		State:                   types.InstanceStateActive,
		PreviousVersion:         "1.0.0",
		LastUpgradeAt:           &lastUpgrade,
		RollbackWindowExpiresAt: &expiry,
	}
}

func TestEvaluateAllPass(t *testing.T) {
	now := time.Now()
	eligible, checks := Evaluate(activeSnapshot(now), now, false)
	require.True(t, eligible)
	require.Len(t, checks, 4)
	for _, c := range checks {
		assert.Equal(t, types.VerdictPass, c.Verdict, c.Name)
	}
}

func TestEvaluateChecksRunInFixedOrderEvenAfterFailure(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	snap.State = types.InstanceStateStopped // fails check 1
	snap.LastUpgradeAt = nil                // fails check 2

	eligible, checks := Evaluate(snap, now, false)
	require.False(t, eligible)
	require.Len(t, checks, 4)
	assert.Equal(t, CheckInstanceState, checks[0].Name)
	assert.Equal(t, types.VerdictFail, checks[0].Verdict)
	assert.Equal(t, CheckUpgradeHistory, checks[1].Name)
	assert.Equal(t, types.VerdictFail, checks[1].Verdict)
	// later checks still evaluated for full diagnostics
	assert.Equal(t, CheckPreviousVersion, checks[2].Name)
	assert.Equal(t, types.VerdictPass, checks[2].Verdict)
	assert.Equal(t, CheckRollbackWindow, checks[3].Name)
	assert.Equal(t, types.VerdictPass, checks[3].Verdict)
}

func TestEvaluateWouldStartSkipsInstanceStateCheck(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	snap.State = types.InstanceStateStopped

	eligible, checks := Evaluate(snap, now, true)
	assert.True(t, eligible)
	assert.Equal(t, types.VerdictSkipped, checks[0].Verdict)
	assert.Equal(t, "would be started before rollback", checks[0].Message)
}

func TestEvaluateMissingPreviousVersionFails(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	snap.PreviousVersion = ""

	eligible, checks := Evaluate(snap, now, false)
	assert.False(t, eligible)
	assert.Equal(t, types.VerdictFail, checks[2].Verdict)
}

func TestEvaluateRollbackWindowExpiredFails(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	expired := now.Add(-time.Minute)
	snap.RollbackWindowExpiresAt = &expired

	eligible, checks := Evaluate(snap, now, false)
	assert.False(t, eligible)
	assert.Equal(t, types.VerdictFail, checks[3].Verdict)
}

func TestEvaluateRollbackWindowAbsentTreatedAsOpen(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	snap.RollbackWindowExpiresAt = nil

	eligible, checks := Evaluate(snap, now, false)
	assert.True(t, eligible)
	assert.Equal(t, types.VerdictPass, checks[3].Verdict)
}

func TestEvaluateNeverPanicsOnZeroValueSnapshot(t *testing.T) {
	assert.NotPanics(t, func() {
		eligible, checks := Evaluate(types.InstanceSnapshot{}, time.Now(), false)
		assert.False(t, eligible)
		assert.Len(t, checks, 4)
	})
}

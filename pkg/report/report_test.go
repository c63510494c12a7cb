package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/fleetop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *types.FleetReport {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	results := []types.OperationResult{
		{Instance: "i1", Location: "l1", Operation: types.OperationUpgrade, Status: types.ResultSucceeded, StartedAt: started, FinishedAt: finished, DurationSeconds: 90},
		{Instance: "i2", Location: "l1", Operation: types.OperationUpgrade, Status: types.ResultFailed, ErrorKind: types.ErrorTransient, ErrorMessage: "boom", StartedAt: started, FinishedAt: finished, DurationSeconds: 90},
	}
	return &types.FleetReport{
		StartedAt:       started,
		FinishedAt:      finished,
		DurationSeconds: 90,
		Config: types.RunConfigView{
			Operation: types.OperationUpgrade,
			Project:   "p",
			Locations: []string{"l1"},
		},
		Statistics: types.ComputeStatistics(results),
		Results:    results,
	}
}

func TestWriteJSONProducesStableFieldOrder(t *testing.T) {
	r := sampleReport()
	dir := t.TempDir()

	path, err := WriteJSON(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "upgrade-report-20260102T030405Z.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var roundTripped types.FleetReport
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, r.Statistics, roundTripped.Statistics)
	assert.Len(t, roundTripped.Results, 2)

	var buf bytes.Buffer
	require.NoError(t, json.Indent(&buf, data, "", "  "))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("{\n  \"startedAt\"")))
}

func TestWriteJSONRollbackUsesRollbackFileName(t *testing.T) {
	r := sampleReport()
	r.Config.Operation = types.OperationRollback
	dir := t.TempDir()

	path, err := WriteJSON(dir, r)
	require.NoError(t, err)
	assert.Contains(t, path, "rollback-report-")
}

func TestWriteHumanIncludesStatisticsAndFailures(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, WriteHuman(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "Failures and skips:")
	assert.Contains(t, out, "i2")
	assert.Contains(t, out, "TRANSIENT")
}

func TestWriteHumanDryRunListsCandidates(t *testing.T) {
	started := time.Now()
	results := []types.OperationResult{
		{Instance: "i1", Location: "l1", Status: types.ResultDryRun, TargetVersion: "v2", StartedAt: started, FinishedAt: started},
	}
	r := &types.FleetReport{
		StartedAt:  started,
		FinishedAt: started,
		Config:     types.RunConfigView{Operation: types.OperationUpgrade, DryRun: true},
		Statistics: types.ComputeStatistics(results),
		Results:    results,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHuman(&buf, r))
	assert.Contains(t, buf.String(), "Dry-run candidates:")
	assert.Contains(t, buf.String(), "v2")
}

func TestWriteHumanReportsMessageWhenSet(t *testing.T) {
	r := &types.FleetReport{Message: "no matching instances found"}
	var buf bytes.Buffer
	require.NoError(t, WriteHuman(&buf, r))
	assert.Contains(t, buf.String(), "no matching instances found")
}

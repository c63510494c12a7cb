package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() RunConfig {
	cfg := NewRunConfig()
	cfg.Operation = OperationUpgrade
	cfg.Project = "p"
	cfg.Locations = []string{"us-central1-a"}
	return cfg
}

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *RunConfig) {}, wantErr: false},
		{name: "missing operation", mutate: func(c *RunConfig) { c.Operation = "" }, wantErr: true},
		{name: "invalid operation", mutate: func(c *RunConfig) { c.Operation = "REBOOT" }, wantErr: true},
		{name: "missing project", mutate: func(c *RunConfig) { c.Project = "" }, wantErr: true},
		{name: "empty locations", mutate: func(c *RunConfig) { c.Locations = nil }, wantErr: true},
		{name: "maxParallel zero", mutate: func(c *RunConfig) { c.MaxParallel = 0 }, wantErr: true},
		{name: "maxParallel over 100", mutate: func(c *RunConfig) { c.MaxParallel = 101 }, wantErr: true},
		{name: "maxParallel at bound", mutate: func(c *RunConfig) { c.MaxParallel = 100 }, wantErr: false},
		{
			name:    "pollInterval below minimum",
			mutate:  func(c *RunConfig) { c.PollInterval = 2 * time.Second },
			wantErr: true,
		},
		{
			name: "pollInterval exceeds operationTimeout",
			mutate: func(c *RunConfig) {
				c.OperationTimeout = 10 * time.Second
				c.PollInterval = 20 * time.Second
			},
			wantErr: true,
		},
		{
			name: "healthCheckTimeout exceeds operationTimeout",
			mutate: func(c *RunConfig) {
				c.OperationTimeout = 30 * time.Second
				c.HealthCheckTimeout = 600 * time.Second
			},
			wantErr: true,
		},
		{
			name: "rollbackOnFailure on rollback run",
			mutate: func(c *RunConfig) {
				c.Operation = OperationRollback
				c.RollbackOnFailure = true
			},
			wantErr: true,
		},
		{
			name:    "staggerDelay zero is allowed",
			mutate:  func(c *RunConfig) { c.StaggerDelay = 0 },
			wantErr: false,
		},
		{
			name:    "negative staggerDelay rejected",
			mutate:  func(c *RunConfig) { c.StaggerDelay = -1 * time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDedupeLocationsPreservesFirstOccurrenceOrder(t *testing.T) {
	got := DedupeLocations([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
}

func TestComputeStatisticsPartitionsResults(t *testing.T) {
	results := []OperationResult{
		{Status: ResultUpToDate},
		{Status: ResultDryRun},
		{Status: ResultSkipped},
		{Status: ResultSucceeded},
		{Status: ResultFailed},
		{Status: ResultCompensated},
	}

	stats := ComputeStatistics(results)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 1, stats.UpToDate)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 4, stats.Started) // dryRun + succeeded + failed + compensated
	assert.Equal(t, 4, stats.Eligible)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Compensated)
}

func TestComputeStatisticsDryRunOnlyFleet(t *testing.T) {
	results := []OperationResult{
		{Status: ResultDryRun},
		{Status: ResultUpToDate},
		{Status: ResultDryRun},
		{Status: ResultUpToDate},
	}
	stats := ComputeStatistics(results)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.UpToDate)
	assert.Equal(t, 2, stats.Started)
	assert.Equal(t, 0, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
}

func TestComputeStatisticsEmptyFleet(t *testing.T) {
	stats := ComputeStatistics(nil)
	assert.Equal(t, Statistics{}, stats)
}

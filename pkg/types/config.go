package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// RunConfig is the single typed configuration value for one invocation.
// Every downstream component consumes sub-fields by value; nothing reaches
// back into ambient config dictionaries.
type RunConfig struct {
	Operation          OperationKind `validate:"required,oneof=UPGRADE ROLLBACK"`
	Project            string        `validate:"required"`
	Locations          []string      `validate:"required,min=1,dive,required"`
	Instance           *string
	DryRun             bool
	MaxParallel        int           `validate:"required,min=1,max=100"`
	OperationTimeout   time.Duration `validate:"required"`
	PollInterval       time.Duration `validate:"required"`
	HealthCheckTimeout time.Duration `validate:"required"`
	StaggerDelay       time.Duration `validate:"min=0"`
	RollbackOnFailure  bool
}

// Defaults matching spec §3.
const (
	DefaultOperationTimeout   = 7200 * time.Second
	DefaultPollInterval       = 20 * time.Second
	MinPollInterval           = 5 * time.Second
	DefaultHealthCheckTimeout = 600 * time.Second
	DefaultStaggerDelay       = 3 * time.Second
)

// NewRunConfig fills in spec-mandated defaults for zero-valued fields before
// the caller supplies the required ones, mirroring the teacher's
// health.DefaultConfig() convention.
func NewRunConfig() RunConfig {
	return RunConfig{
		MaxParallel:        1,
		OperationTimeout:   DefaultOperationTimeout,
		PollInterval:       DefaultPollInterval,
		HealthCheckTimeout: DefaultHealthCheckTimeout,
		StaggerDelay:       DefaultStaggerDelay,
	}
}

// Validate checks struct-tag constraints plus the cross-field invariants
// from spec §3 that validator tags can't express. It runs before any I/O;
// a non-nil error should be surfaced to the caller as ErrorConfigInvalid.
func (c RunConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	if c.PollInterval < MinPollInterval {
		return fmt.Errorf("invalid run config: pollInterval %s is below the minimum of %s", c.PollInterval, MinPollInterval)
	}
	if c.PollInterval > c.OperationTimeout {
		return fmt.Errorf("invalid run config: pollInterval %s exceeds operationTimeout %s", c.PollInterval, c.OperationTimeout)
	}
	if c.HealthCheckTimeout > c.OperationTimeout {
		return fmt.Errorf("invalid run config: healthCheckTimeout %s exceeds operationTimeout %s", c.HealthCheckTimeout, c.OperationTimeout)
	}
	if c.Operation != OperationUpgrade && c.RollbackOnFailure {
		return fmt.Errorf("invalid run config: rollbackOnFailure is only meaningful for UPGRADE")
	}
	return nil
}

// DedupeLocations removes duplicate location identifiers while preserving
// the first occurrence's position, per spec §3's "duplicates removed
// stably" invariant.
func DedupeLocations(locations []string) []string {
	seen := make(map[string]struct{}, len(locations))
	out := make([]string, 0, len(locations))
	for _, loc := range locations {
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}

// View redacts RunConfig into the echo embedded in a FleetReport.
func (c RunConfig) View() RunConfigView {
	return RunConfigView{
		Operation:          c.Operation,
		Project:            c.Project,
		Locations:          c.Locations,
		Instance:           c.Instance,
		DryRun:             c.DryRun,
		MaxParallel:        c.MaxParallel,
		OperationTimeout:   int(c.OperationTimeout.Seconds()),
		PollInterval:       int(c.PollInterval.Seconds()),
		HealthCheckTimeout: int(c.HealthCheckTimeout.Seconds()),
		StaggerDelay:       c.StaggerDelay.Seconds(),
		RollbackOnFailure:  c.RollbackOnFailure,
	}
}

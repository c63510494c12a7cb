package fleetsvc

import (
	"context"
	"errors"

	"github.com/cuemby/fleetop/pkg/types"
)

// Service is the minimal capability set the fleet engine needs from the
// cloud provider (spec §4.A). No method carries orchestration policy —
// that lives entirely in pkg/executor and pkg/scheduler.
type Service interface {
	// List returns the instances in one location, in stable order by
	// resource name.
	List(ctx context.Context, project, location string) ([]types.InstanceSnapshot, error)

	// Get fetches a fresh snapshot of a single instance.
	Get(ctx context.Context, name string) (types.InstanceSnapshot, error)

	// Start begins starting a stopped/suspended instance. Legal only when
	// the instance's state is STOPPED or SUSPENDED; otherwise returns an
	// error that Classify reports as ErrorPreconditionViolated.
	Start(ctx context.Context, name string) (types.OperationHandle, error)

	// BeginUpgrade begins an upgrade. Legal only when an upgrade is
	// available and the instance is ACTIVE.
	BeginUpgrade(ctx context.Context, name string) (types.OperationHandle, error)

	// BeginRollback begins a rollback. Legal only when rollback is
	// available and the instance is ACTIVE.
	BeginRollback(ctx context.Context, name string) (types.OperationHandle, error)

	// GetOperation reports whether the named long-running operation has
	// completed, and the classified error if it completed unsuccessfully.
	// Idempotent: safe to call repeatedly for the same handle.
	GetOperation(ctx context.Context, handle types.OperationHandle) (done bool, errKind types.ErrorKind, errMessage string, err error)

	// CheckUpgradable reports whether an upgrade is currently available
	// for the named instance, and the version it would move to.
	CheckUpgradable(ctx context.Context, name string) (upgradable bool, targetVersion string, err error)
}

// ClassifiedError pairs a provider-facing error with the closed ErrorKind
// taxonomy from spec §7. Adapters should return one of these (or a plain
// error, which Classify falls back to ErrorUnexpected for) rather than
// leaking transport-specific error types past the adapter boundary.
type ClassifiedError struct {
	Kind    types.ErrorKind
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewError builds a ClassifiedError.
func NewError(kind types.ErrorKind, message string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message, Err: err}
}

// Classify extracts the ErrorKind from err, defaulting to ErrorUnexpected
// for anything that isn't a *ClassifiedError. This is the single place the
// rest of the engine converts opaque adapter errors into the closed
// taxonomy — no other component performs this translation (spec §9's
// "centralise retry/backoff" note extends naturally to centralising error
// classification).
func Classify(err error) (types.ErrorKind, string) {
	if err == nil {
		return "", ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		msg := ce.Message
		if msg == "" && ce.Err != nil {
			msg = ce.Err.Error()
		}
		return ce.Kind, msg
	}
	return types.ErrorUnexpected, err.Error()
}

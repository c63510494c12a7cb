// Package health implements the post-operation health verifier: it polls
// the provider until an instance reports ACTIVE with an acceptable health
// signal, or gives up after a timeout, the same poll-until-condition shape
// as the teacher's original container health checkers but driven off a
// remote snapshot instead of a local probe.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/types"
)

// transientStates are tolerated while waiting for an instance to settle
// after a start/upgrade/rollback operation completes on the provider side.
var transientStates = map[types.InstanceState]bool{
	types.InstanceStateProvisioning: true,
	types.InstanceStateStarting:     true,
	types.InstanceStateInitializing: true,
}

// Verifier polls an instance until it looks healthy.
type Verifier struct {
	Service fleetsvc.Service
	Clock   clock.Clock
}

// New builds a Verifier.
func New(svc fleetsvc.Service, clk clock.Clock) *Verifier {
	return &Verifier{Service: svc, Clock: clk}
}

// PollUntilHealthy polls Get(name) at pollInterval cadence until the
// instance is ACTIVE with healthState HEALTHY or UNKNOWN, or until timeout
// elapses. UNKNOWN is accepted because some provider builds never publish
// a health signal; treating it as a failure would produce false negatives.
// Any terminal state other than ACTIVE (outside the tolerated transient
// set) fails verification immediately.
func (v *Verifier) PollUntilHealthy(ctx context.Context, name string, pollInterval, timeout time.Duration) error {
	deadline := v.Clock.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		snap, err := v.Service.Get(ctx, name)
		if err != nil {
			kind, msg := fleetsvc.Classify(err)
			if kind != types.ErrorTransient && kind != types.ErrorRateLimited {
				return fmt.Errorf("health check failed: %s", msg)
			}
		} else if snap.State == types.InstanceStateActive {
			if snap.HealthState == types.HealthStateHealthy || snap.HealthState == types.HealthStateUnknown {
				return nil
			}
			return fmt.Errorf("instance reports unhealthy state %q", snap.HealthState)
		} else if !transientStates[snap.State] {
			return fmt.Errorf("instance settled in non-active state %q", snap.State)
		}

		if err := v.Clock.Sleep(ctx, pollInterval); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("health check timed out after %s", timeout)
			}
			return err
		}
	}
}

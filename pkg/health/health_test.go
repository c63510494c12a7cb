package health

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/fleetsvc/fake"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPollUntilHealthyReturnsNilWhenActiveAndHealthy(t *testing.T) {
	svc := fake.New()
	svc.Seed(types.InstanceSnapshot{
		Name:        "i1",
		Location:    "l1",
		State:       types.InstanceStateActive,
		HealthState: types.HealthStateHealthy,
	})
	v := New(svc, clock.New())
	err := v.PollUntilHealthy(context.Background(), "i1", 10*time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestPollUntilHealthyAcceptsUnknownHealthState(t *testing.T) {
	svc := fake.New()
	svc.Seed(types.InstanceSnapshot{
		Name:        "i1",
		Location:    "l1",
		State:       types.InstanceStateActive,
		HealthState: types.HealthStateUnknown,
	})
	v := New(svc, clock.New())
	err := v.PollUntilHealthy(context.Background(), "i1", 10*time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestPollUntilHealthyFailsOnUnhealthyActiveInstance(t *testing.T) {
	svc := fake.New()
	svc.Seed(types.InstanceSnapshot{
		Name:        "i1",
		Location:    "l1",
		State:       types.InstanceStateActive,
		HealthState: types.HealthStateUnhealthy,
	})
	v := New(svc, clock.New())
	err := v.PollUntilHealthy(context.Background(), "i1", 10*time.Millisecond, time.Second)
	assert.Error(t, err)
}

func TestPollUntilHealthyFailsOnUnexpectedTerminalState(t *testing.T) {
	svc := fake.New()
	svc.Seed(types.InstanceSnapshot{
		Name:     "i1",
		Location: "l1",
		State:    types.InstanceStateStopped,
	})
	v := New(svc, clock.New())
	err := v.PollUntilHealthy(context.Background(), "i1", 10*time.Millisecond, time.Second)
	assert.Error(t, err)
}

func TestPollUntilHealthyTimesOut(t *testing.T) {
	svc := fake.New()
	svc.Seed(types.InstanceSnapshot{
		Name:     "i1",
		Location: "l1",
		State:    types.InstanceStateStarting,
	})
	v := New(svc, clock.New())
	err := v.PollUntilHealthy(context.Background(), "i1", 10*time.Millisecond, 50*time.Millisecond)
	assert.Error(t, err)
}

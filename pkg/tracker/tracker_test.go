package tracker

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/fleetsvc/fake"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advanceUntilDone(t *testing.T, fc *clock.Fake, step time.Duration, done <-chan struct{}) {
	t.Helper()
	for i := 0; i < 100; i++ {
		select {
		case <-done:
			return
		default:
		}
		fc.Advance(step)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("tracker did not complete in time")
}

func TestWaitSucceedsWhenOperationCompletes(t *testing.T) {
	svc := fake.New()
	snap := types.InstanceSnapshot{Name: "i1", Location: "l1", State: types.InstanceStateStopped}
	svc.Seed(snap)
	handle, err := svc.Start(context.Background(), "i1")
	require.NoError(t, err)

	fc := clock.NewFake(time.Now())
	tr := New(svc, fc, rand.New(rand.NewSource(1)))

	done := make(chan struct{})
	var gotKind types.ErrorKind
	go func() {
		gotKind, _, _ = tr.Wait(context.Background(), handle, time.Minute, time.Second)
		close(done)
	}()

	advanceUntilDone(t, fc, 500*time.Millisecond, done)
	assert.Equal(t, types.ErrorKind(""), gotKind)
}

func TestWaitReturnsNotFoundForUnknownHandle(t *testing.T) {
	svc := fake.New()
	fc := clock.NewFake(time.Now())
	tr := New(svc, fc, rand.New(rand.NewSource(1)))

	done := make(chan struct{})
	var gotKind types.ErrorKind
	go func() {
		gotKind, _, _ = tr.Wait(context.Background(), types.OperationHandle("operations/does-not-exist"), 2*time.Second, time.Second)
		close(done)
	}()

	advanceUntilDone(t, fc, time.Second, done)
	assert.Equal(t, types.ErrorNotFound, gotKind)
}

func TestWaitReturnsCancelledOnContextCancellation(t *testing.T) {
	svc := fake.New()
	fc := clock.NewFake(time.Now())
	tr := New(svc, fc, rand.New(rand.NewSource(1)))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var gotKind types.ErrorKind
	go func() {
		gotKind, _, _ = tr.Wait(ctx, types.OperationHandle("operations/never"), time.Minute, time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
	assert.Equal(t, types.ErrorCancelled, gotKind)
}

func TestWaitSurfacesOperationError(t *testing.T) {
	svc := fake.New()
	snap := types.InstanceSnapshot{Name: "i1", Location: "l1", State: types.InstanceStateStopped}
	svc.Seed(snap)
	handle, err := svc.Start(context.Background(), "i1")
	require.NoError(t, err)
	svc.FailOperation(handle, types.ErrorUnexpected, "boom")

	fc := clock.NewFake(time.Now())
	tr := New(svc, fc, rand.New(rand.NewSource(1)))

	done := make(chan struct{})
	var gotKind types.ErrorKind
	go func() {
		gotKind, _, _ = tr.Wait(context.Background(), handle, time.Minute, time.Second)
		close(done)
	}()

	advanceUntilDone(t, fc, 500*time.Millisecond, done)
	assert.Equal(t, types.ErrorUnexpected, gotKind)
}

func TestJitteredStaysWithinTwentyPercent(t *testing.T) {
	tr := New(fake.New(), clock.New(), rand.New(rand.NewSource(42)))
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		got := tr.jittered(base)
		assert.GreaterOrEqual(t, got, 8*time.Second)
		assert.LessOrEqual(t, got, 12*time.Second)
	}
}

func TestNextBackoffCapsAtFiveTimesPollIntervalOrOneTwentySeconds(t *testing.T) {
	poll := time.Second
	backoff := poll
	for i := 0; i < 20; i++ {
		backoff = nextBackoff(backoff, poll)
	}
	assert.LessOrEqual(t, backoff, 5*poll)

	poll = time.Minute
	backoff = poll
	for i := 0; i < 20; i++ {
		backoff = nextBackoff(backoff, poll)
	}
	assert.LessOrEqual(t, backoff, maxBackoffCap)
}

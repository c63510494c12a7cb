package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealSleepRespectsContextCancellation(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Sleep(ctx, time.Second)
	assert.Error(t, err)
}

func TestRealSleepZeroDurationReturnsImmediately(t *testing.T) {
	c := New()
	err := c.Sleep(context.Background(), 0)
	assert.NoError(t, err)
}

func TestFakeAdvanceWakesSleepers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	done := make(chan error, 1)
	go func() {
		done <- fc.Sleep(context.Background(), 5*time.Second)
	}()

	select {
	case <-done:
		t.Fatal("sleep returned before clock advanced")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(5 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep did not wake after advance")
	}

	assert.Equal(t, start.Add(5*time.Second), fc.Now())
}

func TestFakeSleepHonoursContextCancellation(t *testing.T) {
	fc := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fc.Sleep(ctx, time.Minute) }()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep did not observe cancellation")
	}
}

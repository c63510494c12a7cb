// Package tracker waits for a long-running provider operation to finish,
// polling on a jittered schedule with exponential backoff on transient
// errors, in the same poll-until-condition style as the teacher's
// pkg/health checkers.
package tracker

import (
	"context"
	"math/rand"
	"time"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/metrics"
	"github.com/cuemby/fleetop/pkg/types"
)

const (
	jitterFraction  = 0.20
	maxBackoffCap   = 120 * time.Second
	backoffMultiple = 5
	maxRetries      = 5
)

// Tracker waits on operations through a fleetsvc.Service.
type Tracker struct {
	Service fleetsvc.Service
	Clock   clock.Clock
	Rand    *rand.Rand
}

// New builds a Tracker. rnd may be nil, in which case a process-global
// source is used; tests that need determinism should pass their own.
func New(svc fleetsvc.Service, clk clock.Clock, rnd *rand.Rand) *Tracker {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tracker{Service: svc, Clock: clk, Rand: rnd}
}

// Wait blocks until handle reports completion, the configured
// operationTimeout elapses, ctx is cancelled, or the transient-retry
// ceiling is exceeded. It returns ("", "", nil) on success, or a non-empty
// ErrorKind plus a sanitised message describing why the wait ended
// unsuccessfully.
func (t *Tracker) Wait(ctx context.Context, handle types.OperationHandle, operationTimeout, pollInterval time.Duration) (types.ErrorKind, string, error) {
	deadline := t.Clock.Now().Add(operationTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	started := t.Clock.Now()
	defer func() { metrics.PollDuration.Observe(t.Clock.Now().Sub(started).Seconds()) }()

	consecutiveTransient := 0
	backoff := pollInterval
	firstPoll := true

	for {
		wait := t.jittered(pollInterval)
		if firstPoll {
			wait = pollInterval
			firstPoll = false
		}
		if consecutiveTransient > 0 {
			wait = backoff
		}

		if err := t.Clock.Sleep(ctx, wait); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return types.ErrorTimeout, "operation did not complete within the configured timeout", nil
			}
			return types.ErrorCancelled, "run was cancelled while waiting for the operation", nil
		}

		done, errKind, errMessage, err := t.Service.GetOperation(ctx, handle)
		if err != nil {
			kind, msg := fleetsvc.Classify(err)
			if kind == types.ErrorTransient || kind == types.ErrorRateLimited {
				consecutiveTransient++
				if consecutiveTransient >= maxRetries {
					return kind, msg, nil
				}
				metrics.TrackerRetriesTotal.WithLabelValues(string(kind)).Inc()
				backoff = nextBackoff(backoff, pollInterval)
				continue
			}
			return kind, msg, nil
		}
		consecutiveTransient = 0
		backoff = pollInterval

		if !done {
			continue
		}
		if errKind != "" {
			return errKind, errMessage, nil
		}
		return "", "", nil
	}
}

func nextBackoff(current, pollInterval time.Duration) time.Duration {
	next := current * 2
	ceiling := pollInterval * backoffMultiple
	if ceiling > maxBackoffCap {
		ceiling = maxBackoffCap
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}

// jittered returns d adjusted by a uniform random factor in [-20%, +20%].
func (t *Tracker) jittered(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (t.Rand.Float64()*2 - 1) * delta
	result := time.Duration(float64(d) + offset)
	if result < 0 {
		return 0
	}
	return result
}

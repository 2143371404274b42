package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyBackoffDoublesWithinBounds(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MinDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, MaxElapsed: 30 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		require.Equal(t, expected, policy.Backoff(attempt), "attempt %d", attempt)
	}
	require.Equal(t, 8*time.Second, policy.Backoff(200))

	small := RetryPolicy{BaseDelay: 100 * time.Millisecond, MinDelay: 500 * time.Millisecond, MaxDelay: time.Second}
	require.Equal(t, 500*time.Millisecond, small.Backoff(0))
	require.Equal(t, time.Second, small.Backoff(4))
}

func TestRetrierSucceedsAfterQuotaErrors(t *testing.T) {
	gen := &scriptedGenerator{failFirst: 3, reply: "ok"}
	retrier := NewRetrier(NewGate(2), fastPolicy())

	reply, err := retrier.Run(context.Background(), func(ctx context.Context) (string, error) {
		return gen.Generate(ctx, "p")
	})
	require.NoError(t, err)
	require.Equal(t, "ok", reply)
	require.Equal(t, 4, gen.Calls())
}

func TestRetrierStopsAtDeadline(t *testing.T) {
	gen := &scriptedGenerator{alwaysExhausted: true}
	policy := fastPolicy()
	policy.MaxElapsed = 150 * time.Millisecond
	retrier := NewRetrier(NewGate(1), policy)

	start := time.Now()
	_, err := retrier.Run(context.Background(), func(ctx context.Context) (string, error) {
		return gen.Generate(ctx, "p")
	})
	elapsed := time.Since(start)

	require.True(t, errors.Is(err, ErrQuotaExceeded), "got %v", err)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, time.Second)
	require.Greater(t, gen.Calls(), 1)
}

func TestRetrierDoesNotRetryFatalErrors(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("invalid api key")}
	retrier := NewRetrier(NewGate(1), fastPolicy())

	_, err := retrier.Run(context.Background(), func(ctx context.Context) (string, error) {
		return gen.Generate(ctx, "p")
	})
	require.True(t, errors.Is(err, ErrSystem))
	require.Equal(t, 1, gen.Calls())
}

func TestRetrierReportsGateStarvationAsQuotaExceeded(t *testing.T) {
	gate := NewGate(1)
	hold := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = gate.Do(context.Background(), func(context.Context) error {
			close(holding)
			<-hold
			return nil
		})
	}()
	<-holding
	defer close(hold)

	policy := fastPolicy()
	policy.MaxElapsed = 50 * time.Millisecond
	gen := &scriptedGenerator{reply: "never"}

	_, err := NewRetrier(gate, policy).Run(context.Background(), func(ctx context.Context) (string, error) {
		return gen.Generate(ctx, "p")
	})
	require.True(t, errors.Is(err, ErrQuotaExceeded), "got %v", err)
	require.Zero(t, gen.Calls())
}

func TestRetrierFreesSlotDuringBackoff(t *testing.T) {
	gate := NewGate(1)
	policy := RetryPolicy{BaseDelay: 40 * time.Millisecond, MinDelay: 40 * time.Millisecond, MaxDelay: 40 * time.Millisecond, MaxElapsed: 400 * time.Millisecond}
	gen := &scriptedGenerator{alwaysExhausted: true}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = NewRetrier(gate, policy).Run(context.Background(), func(ctx context.Context) (string, error) {
			return gen.Generate(ctx, "p")
		})
	}()

	require.Eventually(t, func() bool { return gen.Calls() >= 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ran := false
	require.NoError(t, gate.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
	<-done
}

func TestRetrierCallerCancellationIsSystemError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{alwaysExhausted: true}
	policy := fastPolicy()
	policy.MinDelay = 50 * time.Millisecond
	policy.MaxDelay = 50 * time.Millisecond

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewRetrier(NewGate(1), policy).Run(ctx, func(callCtx context.Context) (string, error) {
		return gen.Generate(callCtx, "p")
	})
	require.True(t, errors.Is(err, ErrSystem), "got %v", err)
}

func TestGateReleasesSlotAfterPanic(t *testing.T) {
	gate := NewGate(1)

	func() {
		defer func() { _ = recover() }()
		_ = gate.Do(context.Background(), func(context.Context) error { panic("boom") })
	}()
	require.Zero(t, gate.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, gate.Do(ctx, func(context.Context) error { return nil }))
	require.Equal(t, 1, gate.Capacity())
}

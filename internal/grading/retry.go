package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/gema-edp-api/internal/observability"
	"github.com/noah-isme/gema-edp-api/pkg/ai"
)

var (
	// ErrQuotaExceeded reports that the provider kept refusing for quota reasons until the deadline.
	ErrQuotaExceeded = errors.New("grading: quota exceeded")
	// ErrSystem reports a non-retryable generator failure.
	ErrSystem = errors.New("grading: system error")
)

// RetryPolicy configures exponential backoff bounded by total elapsed time.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxElapsed time.Duration
}

// DefaultRetryPolicy mirrors the provider's documented quota window.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MinDelay:   500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		MaxElapsed: 30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MinDelay <= 0 {
		p.MinDelay = def.MinDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = def.MaxElapsed
	}
	return p
}

// Backoff returns the wait before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	delay := p.MaxDelay
	if attempt < 32 {
		if d := p.BaseDelay << uint(attempt); d > 0 && d < p.MaxDelay {
			delay = d
		}
	}
	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	return delay
}

// Retrier drives one logical generator call through the gate with quota-aware backoff.
type Retrier struct {
	gate   *Gate
	policy RetryPolicy
}

// NewRetrier builds a retrier; each attempt acquires its own gate slot.
func NewRetrier(gate *Gate, policy RetryPolicy) *Retrier {
	if gate == nil {
		gate = NewGate(DefaultGateCapacity)
	}
	return &Retrier{gate: gate, policy: policy.withDefaults()}
}

// Run invokes call until it succeeds, fails with a non-quota error, or the deadline passes.
// Failures are reported as ErrQuotaExceeded or ErrSystem, wrapping the last cause.
func (r *Retrier) Run(parent context.Context, call func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(parent, r.policy.MaxElapsed)
	defer cancel()

	var lastErr error
	for attempt := 0; ; attempt++ {
		var reply string
		err := r.gate.Do(ctx, func(callCtx context.Context) error {
			var callErr error
			reply, callErr = call(callCtx)
			return callErr
		})

		switch {
		case err == nil:
			observability.GradingAttempts().WithLabelValues("success").Inc()
			return reply, nil
		case errors.Is(err, ErrGateTimeout):
			observability.GradingAttempts().WithLabelValues("gate_timeout").Inc()
			return "", r.deadlineError(parent, lastErr, err)
		case ai.IsResourceExhausted(err):
			observability.GradingAttempts().WithLabelValues("resource_exhausted").Inc()
			lastErr = err
		case ctx.Err() != nil:
			observability.GradingAttempts().WithLabelValues("deadline").Inc()
			return "", r.deadlineError(parent, lastErr, err)
		default:
			observability.GradingAttempts().WithLabelValues("error").Inc()
			return "", fmt.Errorf("%w: %v", ErrSystem, err)
		}

		timer := time.NewTimer(r.policy.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", r.deadlineError(parent, lastErr, ctx.Err())
		case <-timer.C:
		}
	}
}

// deadlineError decides how a call that ran out of time is reported: quota pressure seen during the
// loop (or a gate that never freed up) is QuotaExceeded, a caller cancellation is a system error.
func (r *Retrier) deadlineError(parent context.Context, lastQuotaErr, cause error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSystem, parent.Err())
	}
	if lastQuotaErr != nil {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, lastQuotaErr)
	}
	if errors.Is(cause, ErrGateTimeout) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, cause)
	}
	return fmt.Errorf("%w: %v", ErrSystem, cause)
}

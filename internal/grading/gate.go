package grading

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/gema-edp-api/internal/observability"
)

// DefaultGateCapacity bounds in-flight generator calls when no capacity is configured.
const DefaultGateCapacity = 10

// ErrGateTimeout reports that no slot became free before the context ended.
var ErrGateTimeout = errors.New("grading: admission gate wait expired")

// Gate is a counting semaphore in front of the generator.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
}

// NewGate returns a gate admitting at most capacity concurrent calls.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultGateCapacity
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: int64(capacity)}
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int { return int(g.capacity) }

// InFlight returns the number of calls currently holding a slot.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Do runs fn while holding one slot. The slot is released on every exit path, panics included.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrGateTimeout, err)
	}
	g.inFlight.Add(1)
	observability.GradingGateInFlight().Inc()
	defer func() {
		observability.GradingGateInFlight().Dec()
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

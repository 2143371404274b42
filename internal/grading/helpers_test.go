package grading

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/gema-edp-api/pkg/ai"
)

// scriptedGenerator is a fake provider that records calls and peak concurrency.
type scriptedGenerator struct {
	mu              sync.Mutex
	calls           int
	prompts         []string
	failFirst       int
	alwaysExhausted bool
	err             error
	reply           string
	delay           time.Duration
	release         chan struct{}
	started         chan struct{}

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.maxInFlight.Load()
		if current <= peak || g.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	g.mu.Lock()
	g.calls++
	n := g.calls
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.started != nil && n == 1 {
		close(g.started)
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if g.alwaysExhausted || n <= g.failFirst {
		return "", fmt.Errorf("provider 429: %w", ai.ErrResourceExhausted)
	}
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  2 * time.Millisecond,
		MinDelay:   time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		MaxElapsed: 300 * time.Millisecond,
	}
}

const gradedReply = `{"relevance_score": 100, "creativity_score": 55, "score_breakdown": [
	{"criteria": "A", "score": 20, "max_score": 25, "comment": "a"},
	{"criteria": "B", "score": 18, "max_score": 25, "comment": "b"},
	{"criteria": "C", "score": 12, "max_score": 25, "comment": "c"},
	{"criteria": "D", "score": 7, "max_score": 25, "comment": "d"}
], "feedback": "ดีมาก", "critical_thinking": "High", "sentiment": "Neutral", "competency_level": "Apprentice", "warning_flags": [], "suggested_action": "ต่อยอด"}`

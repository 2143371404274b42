package grading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const sampleSubmission = "ปัญหาคือโรงเรียนมีขยะพลาสติกจำนวนมาก เราจะออกแบบถังคัดแยกขยะอัตโนมัติ"

func newTestService(gen *scriptedGenerator, opts ...Option) *Service {
	base := []Option{WithRetryPolicy(fastPolicy()), WithLogger(zerolog.Nop())}
	return NewService(gen, append(base, opts...)...)
}

func TestServiceShortCircuitsShortSubmissions(t *testing.T) {
	gen := &scriptedGenerator{reply: gradedReply}
	svc := newTestService(gen)

	for _, text := range []string{"", "   ", "too short", "  ๑๒๓๔๕๖๗๘๙  "} {
		result := svc.Evaluate(context.Background(), Request{Step: 1, Text: text})
		require.Zero(t, result.RelevanceScore)
		require.True(t, result.HasFlag(FlagTooShort), text)
	}
	require.Zero(t, gen.Calls())
}

func TestServiceGradesAndRecomputesAggregate(t *testing.T) {
	gen := &scriptedGenerator{reply: gradedReply}
	svc := newTestService(gen, WithLocale("English"))

	result := svc.Evaluate(context.Background(), Request{Step: 2, Text: sampleSubmission})

	require.Equal(t, 57, result.RelevanceScore)
	require.Equal(t, 55, result.CreativityScore)
	require.Equal(t, CompetencyApprentice, result.Competency)
	require.False(t, result.Degraded())
	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "in English")
	require.Contains(t, gen.prompts[0], sampleSubmission)
}

func TestServiceSequentialCallsHitCache(t *testing.T) {
	gen := &scriptedGenerator{reply: gradedReply}
	svc := newTestService(gen)

	first := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})
	second := svc.Evaluate(context.Background(), Request{Step: 1, Text: "  " + sampleSubmission + "\n"})

	require.Equal(t, first, second)
	require.Equal(t, 1, gen.Calls())

	svc.Evaluate(context.Background(), Request{Step: 2, Text: sampleSubmission})
	require.Equal(t, 2, gen.Calls())
}

func TestServiceRetriesQuotaErrorsUntilSuccess(t *testing.T) {
	gen := &scriptedGenerator{failFirst: 2, reply: gradedReply}
	svc := newTestService(gen)

	result := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})

	require.Equal(t, 57, result.RelevanceScore)
	require.Equal(t, 3, gen.Calls())
}

func TestServiceDegradesWhenQuotaNeverRecovers(t *testing.T) {
	gen := &scriptedGenerator{alwaysExhausted: true}
	policy := fastPolicy()
	policy.MaxElapsed = 200 * time.Millisecond
	svc := newTestService(gen, WithRetryPolicy(policy))

	start := time.Now()
	result := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})

	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, result.RelevanceScore)
	require.True(t, result.HasFlag(FlagQuotaExceeded))
	require.Equal(t, QuotaExceededFeedback, result.Feedback)

	again := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})
	require.True(t, again.HasFlag(FlagQuotaExceeded))
}

func TestServiceDegradesOnFatalError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("dial tcp: connection refused")}
	svc := newTestService(gen)

	result := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})

	require.True(t, result.HasFlag(FlagSystemError))
	require.Zero(t, result.RelevanceScore)
	require.Equal(t, 1, gen.Calls())
}

func TestServiceFormatErrorsAreNotCached(t *testing.T) {
	gen := &scriptedGenerator{reply: "Sorry, I can only answer in prose."}
	svc := newTestService(gen)

	first := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})
	second := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})

	require.True(t, first.HasFlag(FlagFormatError))
	require.Zero(t, first.RelevanceScore)
	require.True(t, second.HasFlag(FlagFormatError))
	require.Equal(t, 2, gen.Calls())
}

func TestServiceBoundsInFlightCalls(t *testing.T) {
	const capacity = 3
	gen := &scriptedGenerator{reply: gradedReply, delay: 20 * time.Millisecond}
	svc := newTestService(gen, WithGate(NewGate(capacity)))

	var wg sync.WaitGroup
	results := make([]Result, 24)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Evaluate(context.Background(), Request{Step: 1, Text: fmt.Sprintf("%s #%d", sampleSubmission, i)})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 24, gen.Calls())
	require.LessOrEqual(t, gen.maxInFlight.Load(), int64(capacity))
	require.Greater(t, gen.maxInFlight.Load(), int64(0))
	for _, result := range results {
		require.Equal(t, 57, result.RelevanceScore)
	}
}

func TestServiceCollapsesConcurrentMissesWhenEnabled(t *testing.T) {
	gen := &scriptedGenerator{reply: gradedReply, release: make(chan struct{}), started: make(chan struct{})}
	svc := newTestService(gen, WithInFlightCollapse())

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Evaluate(context.Background(), Request{Step: 4, Text: sampleSubmission})
		}(i)
	}

	<-gen.started
	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	require.Equal(t, 1, gen.Calls())
	for _, result := range results {
		require.Equal(t, results[0], result)
	}
}

func TestServiceCollapsedWaitersSurviveFirstCallerCancel(t *testing.T) {
	gen := &scriptedGenerator{reply: gradedReply, delay: 100 * time.Millisecond, started: make(chan struct{})}
	svc := newTestService(gen, WithInFlightCollapse())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	var first, second Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = svc.Evaluate(firstCtx, Request{Step: 2, Text: sampleSubmission})
	}()

	<-gen.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = svc.Evaluate(context.Background(), Request{Step: 2, Text: sampleSubmission})
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	wg.Wait()

	require.True(t, first.HasFlag(FlagSystemError))
	require.False(t, second.HasFlag(FlagSystemError))
	require.Equal(t, 57, second.RelevanceScore)
	require.Equal(t, 1, gen.Calls())

	cached := svc.Evaluate(context.Background(), Request{Step: 2, Text: sampleSubmission})
	require.Equal(t, 57, cached.RelevanceScore)
	require.Equal(t, 1, gen.Calls())
}

func TestServiceSharedCacheServesOtherReplicas(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	firstGen := &scriptedGenerator{reply: gradedReply}
	first := newTestService(firstGen, WithSharedCache(NewRedisCache(client, "", time.Hour)))
	graded := first.Evaluate(context.Background(), Request{Step: 3, Text: sampleSubmission})
	require.Equal(t, 1, firstGen.Calls())

	secondGen := &scriptedGenerator{reply: gradedReply}
	second := newTestService(secondGen, WithSharedCache(NewRedisCache(client, "", time.Hour)))
	fromShared := second.Evaluate(context.Background(), Request{Step: 3, Text: sampleSubmission})

	require.Zero(t, secondGen.Calls())
	require.Equal(t, graded, fromShared)
}

func TestServiceToleratesSharedCacheOutage(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr(), MaxRetries: -1})
	defer client.Close()
	mini.Close()

	gen := &scriptedGenerator{reply: gradedReply}
	svc := newTestService(gen, WithSharedCache(NewRedisCache(client, "", time.Hour)))

	result := svc.Evaluate(context.Background(), Request{Step: 1, Text: sampleSubmission})
	require.Equal(t, 57, result.RelevanceScore)
	require.Equal(t, 1, gen.Calls())
}

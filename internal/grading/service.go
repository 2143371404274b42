package grading

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/gema-edp-api/internal/observability"
	"github.com/noah-isme/gema-edp-api/pkg/ai"
)

// MinSubmissionLength is the shortest trimmed submission, in characters, that is sent for grading.
const MinSubmissionLength = 10

// Evaluator is the grading entry point used by the submission pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) Result
}

// Option customises a Service.
type Option func(*Service)

// WithCache replaces the default in-memory LRU cache.
func WithCache(cache *LRUCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithSharedCache adds a second cache tier consulted after the in-memory cache.
func WithSharedCache(shared SharedCache) Option {
	return func(s *Service) { s.shared = shared }
}

// WithGate replaces the default admission gate.
func WithGate(gate *Gate) Option {
	return func(s *Service) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithRetryPolicy overrides the backoff policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithLocale sets the language requested for feedback.
func WithLocale(locale string) Option {
	return func(s *Service) { s.locale = locale }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithInFlightCollapse makes concurrent misses on one fingerprint share a single generator call.
func WithInFlightCollapse() Option {
	return func(s *Service) { s.collapse = true }
}

// Service grades submissions: cache, then admission gate and retries around the generator,
// then normalization.
type Service struct {
	generator ai.Generator
	cache     *LRUCache
	shared    SharedCache
	gate      *Gate
	policy    RetryPolicy
	retrier   *Retrier
	locale    string
	collapse  bool
	group     singleflight.Group
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewService wires a grading service around generator.
func NewService(generator ai.Generator, opts ...Option) *Service {
	s := &Service{
		generator: generator,
		cache:     NewLRUCache(DefaultCacheSize),
		gate:      NewGate(DefaultGateCapacity),
		policy:    DefaultRetryPolicy(),
		locale:    DefaultLocale,
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-edp-api/internal/grading"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "grading_service").Logger()
	s.retrier = NewRetrier(s.gate, s.policy)
	return s
}

// Evaluate grades one submission. It never returns an error: provider failures are absorbed into
// degraded results carrying a diagnostic warning flag.
func (s *Service) Evaluate(parent context.Context, req Request) Result {
	start := time.Now()
	defer func() { observability.GradingDuration().Observe(time.Since(start).Seconds()) }()

	ctx, span := s.tracer.Start(parent, "grading.evaluate", trace.WithAttributes(
		attribute.Int("grading.step", req.Step),
	))
	defer span.End()

	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) < MinSubmissionLength {
		observability.GradingResults().WithLabelValues(FlagTooShort).Inc()
		return TooShortResult()
	}

	key := Fingerprint(req.Step, text)
	if cached, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("grading.cache_hit", true))
		observability.GradingResults().WithLabelValues("cached").Inc()
		return cached
	}

	if !s.collapse {
		return s.grade(ctx, req.Step, text, key)
	}

	// The shared call outlives any single waiter; the retry deadline still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.grade(shared, req.Step, text, key), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Result).Clone()
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Int("step", req.Step).Msg("caller left before shared grading finished")
		observability.GradingResults().WithLabelValues(FlagSystemError).Inc()
		return SystemErrorResult()
	}
}

func (s *Service) lookup(ctx context.Context, key string) (Result, bool) {
	if result, ok := s.cache.Get(key); ok {
		observability.GradingCacheLookups().WithLabelValues("memory", "hit").Inc()
		return result, true
	}
	observability.GradingCacheLookups().WithLabelValues("memory", "miss").Inc()

	if s.shared == nil {
		return Result{}, false
	}
	result, ok, err := s.shared.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("shared grading cache unavailable")
		return Result{}, false
	}
	if !ok {
		observability.GradingCacheLookups().WithLabelValues("shared", "miss").Inc()
		return Result{}, false
	}
	observability.GradingCacheLookups().WithLabelValues("shared", "hit").Inc()
	s.cache.Put(key, result)
	return result, true
}

func (s *Service) store(ctx context.Context, key string, result Result) {
	s.cache.Put(key, result)
	if s.shared == nil {
		return
	}
	if err := s.shared.Put(ctx, key, result); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store shared grading cache")
	}
}

func (s *Service) grade(ctx context.Context, step int, text, key string) Result {
	prompt := BuildPrompt(step, text, s.locale)

	reply, err := s.retrier.Run(ctx, func(callCtx context.Context) (string, error) {
		return s.generator.Generate(callCtx, prompt)
	})
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		s.logger.Warn().Err(err).Int("step", step).Msg("grading quota exhausted")
		observability.GradingResults().WithLabelValues(FlagQuotaExceeded).Inc()
		return QuotaExceededResult()
	case err != nil:
		s.logger.Error().Err(err).Int("step", step).Msg("grading call failed")
		observability.GradingResults().WithLabelValues(FlagSystemError).Inc()
		return SystemErrorResult()
	}

	result, err := Normalize(step, reply)
	if err != nil {
		s.logger.Warn().Err(err).Int("step", step).Int("reply_bytes", len(reply)).Msg("unusable grading reply")
		observability.GradingResults().WithLabelValues(FlagFormatError).Inc()
		return result
	}

	s.store(ctx, key, result)
	observability.GradingResults().WithLabelValues("graded").Inc()
	return result
}

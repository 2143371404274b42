package ai

import (
	"context"
	"errors"
)

// ErrResourceExhausted reports that the provider rejected the call for quota or rate-limit reasons.
// It is the only failure class callers should retry.
var ErrResourceExhausted = errors.New("ai: resource exhausted")

// Generator turns a prompt into the model's raw textual reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// IsResourceExhausted reports whether err carries the quota failure signal.
func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

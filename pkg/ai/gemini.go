package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiConfig defines configuration options for the Gemini generator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	JSONOutput  bool
	Logger      zerolog.Logger
}

// GeminiGenerator implements Generator on top of the Google generative AI SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiGenerator opens a long-lived Gemini client. Close must be called on shutdown.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	temperature := cfg.Temperature
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temperature}
	if cfg.JSONOutput {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-edp-api/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_generator").Logger(),
	}, nil
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string { return g.cfg.Model }

// Close releases the underlying client connection.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Generate sends the prompt and returns the first text part of the first candidate.
func (g *GeminiGenerator) Generate(parent context.Context, prompt string) (string, error) {
	ctx, span := g.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	generateDuration.WithLabelValues("gemini", g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classifyGeminiError(err)
		generateFailures.WithLabelValues("gemini", g.cfg.Model, failureReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}

	text := firstText(resp)
	if text == "" {
		err := fmt.Errorf("gemini generate: empty response")
		generateFailures.WithLabelValues("gemini", g.cfg.Model, "empty").Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", err
	}

	if resp.UsageMetadata != nil {
		g.logger.Debug().
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("candidate_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Msg("gemini generation completed")
	}

	return text, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var builder strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		if builder.Len() > 0 {
			return builder.String()
		}
	}
	return ""
}

// classifyGeminiError maps HTTP 429 and gRPC ResourceExhausted onto ErrResourceExhausted.
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini generate: %w: %s", ErrResourceExhausted, apiErr.Message)
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return fmt.Errorf("gemini generate: %w: %s", ErrResourceExhausted, st.Message())
	}
	return fmt.Errorf("gemini generate: %w", err)
}

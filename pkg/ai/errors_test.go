package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyGeminiErrorDetectsQuota(t *testing.T) {
	httpErr := classifyGeminiError(&googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"})
	require.True(t, IsResourceExhausted(httpErr))

	grpcErr := classifyGeminiError(status.Error(codes.ResourceExhausted, "quota exceeded"))
	require.True(t, IsResourceExhausted(grpcErr))

	other := classifyGeminiError(status.Error(codes.InvalidArgument, "bad request"))
	require.False(t, IsResourceExhausted(other))
	require.Error(t, other)
}

func TestClassifyOpenAIErrorDetectsQuota(t *testing.T) {
	quota := classifyOpenAIError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"})
	require.True(t, IsResourceExhausted(quota))

	server := classifyOpenAIError(&openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"})
	require.False(t, IsResourceExhausted(server))

	network := classifyOpenAIError(errors.New("connection reset"))
	require.False(t, IsResourceExhausted(network))
}

func TestGeneratorFuncDelegates(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "echo:" + prompt, nil
	})

	out, err := gen.Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "echo:hi", out)
}

func TestGeneratorConstructorsRequireKeys(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	require.Error(t, err)

	_, err = NewGeminiGenerator(context.Background(), GeminiConfig{APIKey: "  "})
	require.Error(t, err)
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name     string
		classify classifyFunc
		status   int
		want     ErrorCode
	}{
		{"grok 429", classifyGrokError, 429, ErrRateLimit},
		{"grok 401", classifyGrokError, 401, ErrAuthFailed},
		{"grok 402", classifyGrokError, 402, ErrAPIError},
		{"grok 403", classifyGrokError, 403, ErrAPIError},
		{"grok 500", classifyGrokError, 500, ErrAPIError},
		{"grok 503", classifyGrokError, 503, ErrAPIError},
		{"grok 400", classifyGrokError, 400, ErrAPIError},
		{"openai 429", classifyOpenAIError, 429, ErrRateLimit},
		{"openai 401", classifyOpenAIError, 401, ErrAuthFailed},
		{"openai 402", classifyOpenAIError, 402, ErrAuthFailed},
		{"openai 403", classifyOpenAIError, 403, ErrAuthFailed},
		{"openai 500", classifyOpenAIError, 500, ErrAPIError},
		{"openai 400", classifyOpenAIError, 400, ErrAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.classify(tt.status))
		})
	}
}

func serveCompletion(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
}

func providerFor(serverURL string) Provider {
	return NewGrokProvider(ProviderConfig{
		Enabled:   true,
		APIKey:    "test-key",
		Model:     "grok-beta",
		MaxTokens: 100,
		BaseURL:   serverURL,
	}, testLogger())
}

func TestProviderSuccessfulCompletion(t *testing.T) {
	server := serveCompletion(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": "  привіт  "}},
		},
		"usage": map[string]any{"total_tokens": 42},
	})
	defer server.Close()

	p := providerFor(server.URL)
	resp := p.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)

	require.True(t, resp.Success)
	assert.Equal(t, "привіт", resp.Content)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, ProviderGrok, resp.Provider)
}

func TestProviderEmptyContentIsError(t *testing.T) {
	server := serveCompletion(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": "   "}},
		},
	})
	defer server.Close()

	p := providerFor(server.URL)
	resp := p.GenerateResponse(context.Background(), nil, nil)

	require.False(t, resp.Success)
	require.NotNil(t, resp.Err)
	assert.Equal(t, ErrAPIError, resp.Err.Code)
	assert.True(t, resp.Err.Retryable)
}

func TestProviderRateLimitResponse(t *testing.T) {
	server := serveCompletion(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "rate limited", "type": "rate_limit_error"},
	})
	defer server.Close()

	p := providerFor(server.URL)
	resp := p.GenerateResponse(context.Background(), nil, nil)

	require.False(t, resp.Success)
	require.NotNil(t, resp.Err)
	assert.Equal(t, ErrRateLimit, resp.Err.Code)
	assert.Equal(t, http.StatusTooManyRequests, resp.Err.StatusCode)
	assert.Equal(t, "rate limited", resp.Err.Message)
}

func TestProviderWithoutKeyNotReady(t *testing.T) {
	p := NewGrokProvider(ProviderConfig{Enabled: true}, testLogger())

	assert.Equal(t, StatusNotConfigured, p.IsReady())

	resp := p.GenerateResponse(context.Background(), nil, nil)
	require.False(t, resp.Success)
	assert.Equal(t, ErrNoAPIKey, resp.Err.Code)
}

func TestProviderResetRequiresReinit(t *testing.T) {
	p := NewGrokProvider(ProviderConfig{Enabled: true, APIKey: "k"}, testLogger())

	assert.Equal(t, StatusReady, p.IsReady())
	p.Reset()
	// Readiness checks re-initialize from the kept config.
	assert.Equal(t, StatusReady, p.IsReady())

	p.UpdateConfig(ProviderConfig{Type: ProviderGrok, Enabled: true})
	assert.Equal(t, StatusNotConfigured, p.IsReady())
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 60 * time.Second

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// classifyFunc maps an HTTP status to a provider error code.
type classifyFunc func(statusCode int) ErrorCode

// httpProvider is a chat-completions client for OpenAI-compatible APIs.
// Grok and OpenAI share this implementation and differ only in defaults
// and error classification.
type httpProvider struct {
	mu        sync.RWMutex
	cfg       ProviderConfig
	client    *http.Client
	cachedKey string
	status    Status
	classify  classifyFunc
	logger    *logrus.Logger
}

func newHTTPProvider(cfg ProviderConfig, classify classifyFunc, logger *logrus.Logger) *httpProvider {
	return &httpProvider{
		cfg:      cfg,
		status:   StatusNotConfigured,
		classify: classify,
		logger:   logger,
	}
}

func (p *httpProvider) Type() ProviderType {
	return p.cfg.Type
}

func (p *httpProvider) Config() ProviderConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *httpProvider) UpdateConfig(cfg ProviderConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	if cfg.APIKey != p.cachedKey {
		p.client = nil
		p.cachedKey = ""
		p.status = StatusNotConfigured
	}
}

// Initialize builds the HTTP client. A client built for the same key is
// reused; a changed key forces a rebuild.
func (p *httpProvider) Initialize() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initializeLocked()
}

func (p *httpProvider) initializeLocked() bool {
	if p.cfg.APIKey == "" {
		p.client = nil
		p.cachedKey = ""
		p.status = StatusNotConfigured
		return false
	}
	if p.client != nil && p.cachedKey == p.cfg.APIKey {
		return true
	}
	p.client = &http.Client{Timeout: defaultRequestTimeout}
	p.cachedKey = p.cfg.APIKey
	p.status = StatusReady
	p.logger.WithFields(logrus.Fields{
		"provider": p.cfg.Type,
		"model":    p.cfg.Model,
	}).Info("AI provider initialized")
	return true
}

func (p *httpProvider) IsReady() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		p.initializeLocked()
	}
	return p.status
}

func (p *httpProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
	p.cachedKey = ""
	p.status = StatusNotConfigured
	p.logger.WithField("provider", p.cfg.Type).Debug("AI provider reset")
}

func (p *httpProvider) GenerateResponse(ctx context.Context, messages []Message, opts *Options) Response {
	p.mu.Lock()
	if !p.initializeLocked() {
		p.mu.Unlock()
		return Response{
			Provider: p.cfg.Type,
			Err: &ProviderError{
				Code:      ErrNoAPIKey,
				Message:   fmt.Sprintf("%s API key not configured", p.cfg.Type),
				Retryable: true,
			},
		}
	}
	cfg := p.cfg
	client := p.client
	p.mu.Unlock()

	model := cfg.Model
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return p.failure(model, ErrAPIError, fmt.Sprintf("failed to encode request: %v", err), 0)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return p.failure(model, ErrAPIError, fmt.Sprintf("failed to build request: %v", err), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("provider", cfg.Type).Warn("AI request failed")
		return p.failure(model, ErrNetworkError, err.Error(), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.failure(model, ErrNetworkError, fmt.Sprintf("failed to read response: %v", err), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		code := p.classify(resp.StatusCode)
		msg := extractAPIError(raw)
		if msg == "" {
			msg = fmt.Sprintf("%s API returned status %d", cfg.Type, resp.StatusCode)
		}
		p.logger.WithFields(logrus.Fields{
			"provider":    cfg.Type,
			"status_code": resp.StatusCode,
			"error_code":  code,
		}).Warn("AI provider error")
		return p.failure(model, code, msg, resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return p.failure(model, ErrAPIError, fmt.Sprintf("failed to decode response: %v", err), resp.StatusCode)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
	}
	if content == "" {
		return p.failure(model, ErrAPIError, "provider returned empty response", resp.StatusCode)
	}

	p.logger.WithFields(logrus.Fields{
		"provider":    cfg.Type,
		"model":       model,
		"tokens_used": parsed.Usage.TotalTokens,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("AI response generated")

	return Response{
		Success:    true,
		Content:    content,
		Provider:   cfg.Type,
		Model:      model,
		TokensUsed: parsed.Usage.TotalTokens,
	}
}

func (p *httpProvider) failure(model string, code ErrorCode, msg string, statusCode int) Response {
	return Response{
		Provider: p.cfg.Type,
		Model:    model,
		Err: &ProviderError{
			Code:       code,
			Message:    msg,
			StatusCode: statusCode,
			Retryable:  true,
		},
	}
}

func extractAPIError(raw []byte) string {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	return ""
}

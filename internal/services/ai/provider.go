package ai

import (
	"context"
	"fmt"
)

// ProviderType identifies one LLM backend integration.
type ProviderType string

const (
	ProviderGrok   ProviderType = "grok"
	ProviderOpenAI ProviderType = "openai"
)

// KnownProviderTypes lists every provider the chain can construct, in
// default priority order.
var KnownProviderTypes = []ProviderType{ProviderGrok, ProviderOpenAI}

// ValidProviderType reports whether s names a known provider.
func ValidProviderType(s string) bool {
	for _, t := range KnownProviderTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Status is the readiness state of a provider.
type Status string

const (
	StatusReady         Status = "ready"
	StatusNotConfigured Status = "not_configured"
	StatusError         Status = "error"
)

// ProviderConfig holds the full settings of one provider instance.
// Lower Priority means the provider is tried earlier.
type ProviderConfig struct {
	Type         ProviderType
	Enabled      bool
	Priority     int
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float64
	BaseURL      string
	HistoryLimit int
}

// Message is one entry of a chat completion exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorCode classifies a provider failure.
type ErrorCode string

const (
	ErrAuthFailed   ErrorCode = "AUTH_FAILED"
	ErrRateLimit    ErrorCode = "RATE_LIMIT"
	ErrAPIError     ErrorCode = "API_ERROR"
	ErrNoAPIKey     ErrorCode = "NO_API_KEY"
	ErrNetworkError ErrorCode = "NETWORK_ERROR"
)

// ProviderError is a classified provider failure. Retryable means the
// chain may try the next provider; it never means retrying the same one.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the outcome of a single generation call. Success implies
// Content is non-empty; failure implies Err is set.
type Response struct {
	Success    bool
	Content    string
	Err        *ProviderError
	Provider   ProviderType
	Model      string
	TokensUsed int
}

// Options override per-call generation parameters; zero values fall back
// to the provider config.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Provider is one LLM backend. Implementations keep an internal client
// that is rebuilt when the credential changes and torn down by Reset.
type Provider interface {
	Type() ProviderType
	// Initialize constructs the underlying client. Returns false when no
	// credential is configured. Idempotent for an unchanged credential.
	Initialize() bool
	IsReady() Status
	GenerateResponse(ctx context.Context, messages []Message, opts *Options) Response
	// Reset discards the client and cached credential; the next readiness
	// check re-initializes.
	Reset()
	Config() ProviderConfig
	UpdateConfig(cfg ProviderConfig)
}

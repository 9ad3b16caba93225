package ai

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *logrus.Logger) Provider {
	cfg.Type = ProviderOpenAI
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	return newHTTPProvider(cfg, classifyOpenAIError, logger)
}

// OpenAI reports exhausted quota as 402/403, which is an account problem
// rather than a transient failure.
func classifyOpenAIError(statusCode int) ErrorCode {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimit
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusPaymentRequired,
		statusCode == http.StatusForbidden:
		return ErrAuthFailed
	case statusCode >= http.StatusInternalServerError:
		return ErrAPIError
	default:
		return ErrAPIError
	}
}

package ai

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

const defaultGrokBaseURL = "https://api.x.ai/v1"

// NewGrokProvider creates the xAI Grok provider.
func NewGrokProvider(cfg ProviderConfig, logger *logrus.Logger) Provider {
	cfg.Type = ProviderGrok
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGrokBaseURL
	}
	return newHTTPProvider(cfg, classifyGrokError, logger)
}

func classifyGrokError(statusCode int) ErrorCode {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimit
	case statusCode == http.StatusUnauthorized:
		return ErrAuthFailed
	case statusCode >= http.StatusInternalServerError:
		return ErrAPIError
	default:
		return ErrAPIError
	}
}

package ai

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/middleware"
)

// ChainResult carries the final response plus which providers the chain
// actually called. Skipped providers (disabled or not ready) are not
// counted as attempts.
type ChainResult struct {
	Response
	AttemptedProviders []ProviderType
	TotalAttempts      int
}

// Chain tries providers in priority order until one succeeds. A failure
// marked non-retryable aborts the chain instead of falling through.
type Chain struct {
	providers []Provider
	logger    *logrus.Logger
}

func NewChain(providers []Provider, logger *logrus.Logger) *Chain {
	c := &Chain{providers: providers, logger: logger}
	c.sortByPriority()
	return c
}

func (c *Chain) sortByPriority() {
	sort.SliceStable(c.providers, func(i, j int) bool {
		return c.providers[i].Config().Priority < c.providers[j].Config().Priority
	})
}

// AddProvider inserts a provider and re-sorts the fallback order.
func (c *Chain) AddProvider(p Provider) {
	c.providers = append(c.providers, p)
	c.sortByPriority()
}

// RemoveProvider drops the provider of the given type, if present.
func (c *Chain) RemoveProvider(t ProviderType) {
	kept := c.providers[:0]
	for _, p := range c.providers {
		if p.Type() != t {
			kept = append(kept, p)
		}
	}
	c.providers = kept
}

// Providers returns the chain members in their fallback order.
func (c *Chain) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Provider returns the chain member of the given type, or nil.
func (c *Chain) Provider(t ProviderType) Provider {
	for _, p := range c.providers {
		if p.Type() == t {
			return p
		}
	}
	return nil
}

// Execute runs the fallback loop. The returned result is the first
// success, or the last attempted failure with the full attempt trail.
func (c *Chain) Execute(ctx context.Context, messages []Message, opts *Options) ChainResult {
	result := ChainResult{
		AttemptedProviders: []ProviderType{},
	}

	for _, p := range c.providers {
		cfg := p.Config()
		if !cfg.Enabled {
			c.logger.WithField("provider", cfg.Type).Debug("provider disabled, skipping")
			continue
		}
		if status := p.IsReady(); status != StatusReady {
			c.logger.WithFields(logrus.Fields{
				"provider": cfg.Type,
				"status":   status,
			}).Debug("provider not ready, skipping")
			continue
		}

		result.AttemptedProviders = append(result.AttemptedProviders, cfg.Type)
		result.TotalAttempts++

		resp := p.GenerateResponse(ctx, messages, opts)
		middleware.ProviderAttemptsTotal.WithLabelValues(string(cfg.Type), attemptOutcome(resp)).Inc()
		if resp.Success {
			result.Response = resp
			return result
		}

		result.Response = resp
		fields := logrus.Fields{
			"provider": cfg.Type,
			"attempt":  result.TotalAttempts,
		}
		if resp.Err != nil {
			fields["error_code"] = resp.Err.Code
			fields["error"] = resp.Err.Message
		}
		if resp.Err != nil && !resp.Err.Retryable {
			c.logger.WithFields(fields).Error("provider failed with non-retryable error, aborting chain")
			return result
		}
		c.logger.WithFields(fields).Warn("provider failed, trying next")
	}

	if result.TotalAttempts == 0 {
		result.Response = Response{
			Err: &ProviderError{
				Code:      ErrAPIError,
				Message:   "no providers configured",
				Retryable: false,
			},
		}
	}
	return result
}

func attemptOutcome(resp Response) string {
	if resp.Success {
		return "success"
	}
	if resp.Err != nil {
		return string(resp.Err.Code)
	}
	return "error"
}

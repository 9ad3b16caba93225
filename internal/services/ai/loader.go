package ai

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
)

// priorityConfigKey is the stored name of the runtime provider order.
const priorityConfigKey = "provider_priority"

// ConfigLoader resolves the effective provider configuration. Credentials
// stored through admin commands win over environment defaults; stored
// priority order wins over the configured one.
type ConfigLoader struct {
	cfg         *config.Config
	credentials storage.CredentialStore
	logger      *logrus.Logger
}

func NewConfigLoader(cfg *config.Config, credentials storage.CredentialStore, logger *logrus.Logger) *ConfigLoader {
	return &ConfigLoader{cfg: cfg, credentials: credentials, logger: logger}
}

// LoadProviderConfig builds the effective config for one provider.
func (l *ConfigLoader) LoadProviderConfig(ctx context.Context, t ProviderType) ProviderConfig {
	var defaults config.ProviderDefaults
	switch t {
	case ProviderGrok:
		defaults = l.cfg.AI.Grok
	case ProviderOpenAI:
		defaults = l.cfg.AI.OpenAI
	}

	apiKey := defaults.APIKey
	if isPlaceholderKey(apiKey) {
		apiKey = ""
	}

	stored, err := l.credentials.GetProviderKey(ctx, string(t))
	if err != nil {
		l.logger.WithError(err).WithField("provider", t).Warn("failed to load stored API key, using defaults")
	} else if stored != nil && !isPlaceholderKey(stored.APIKey) {
		apiKey = stored.APIKey
	}

	return ProviderConfig{
		Type:         t,
		Enabled:      defaults.Enabled,
		Priority:     defaults.Priority,
		APIKey:       apiKey,
		Model:        defaults.Model,
		MaxTokens:    defaults.MaxTokens,
		Temperature:  defaults.Temperature,
		BaseURL:      defaults.BaseURL,
		HistoryLimit: l.cfg.AI.HistoryLimit,
	}
}

// LoadPriorityOrder returns the provider order to try: the stored runtime
// order if present, otherwise the configured one. Unknown names are dropped.
func (l *ConfigLoader) LoadPriorityOrder(ctx context.Context) []ProviderType {
	raw, err := l.credentials.GetConfigValue(ctx, priorityConfigKey)
	if err != nil {
		l.logger.WithError(err).Warn("failed to load stored provider priority")
	}

	var names []string
	if raw != "" {
		names = strings.Split(raw, ",")
	} else {
		names = l.cfg.AI.Priority
	}

	order := make([]ProviderType, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if !ValidProviderType(name) {
			l.logger.WithField("provider", name).Warn("unknown provider in priority order, ignoring")
			continue
		}
		order = append(order, ProviderType(name))
	}
	if len(order) == 0 {
		order = append(order, KnownProviderTypes...)
	}
	return order
}

// SavePriorityOrder persists a runtime provider order.
func (l *ConfigLoader) SavePriorityOrder(ctx context.Context, order []ProviderType) error {
	names := make([]string, len(order))
	for i, t := range order {
		names[i] = string(t)
	}
	return l.credentials.SetConfigValue(ctx, priorityConfigKey, strings.Join(names, ","))
}

// isPlaceholderKey reports whether the key is empty or a template value
// copied from an example env file.
func isPlaceholderKey(key string) bool {
	if key == "" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.Contains(lower, "your_") || strings.HasSuffix(lower, "_here")
}

package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			CooldownMinutes: 7,
			HistoryLimit:    25,
			Priority:        []string{"grok", "openai"},
			Grok: config.ProviderDefaults{
				Enabled:     true,
				APIKey:      "env-grok-key",
				Model:       "grok-beta",
				MaxTokens:   500,
				Temperature: 0.9,
				Priority:    1,
			},
			OpenAI: config.ProviderDefaults{
				Enabled:  false,
				Model:    "gpt-4o-mini",
				Priority: 2,
			},
		},
		Storage: config.StorageConfig{
			Type:        "memory",
			MaxMessages: 1000,
			Memory: config.MemoryConfig{
				DefaultExpiration: time.Hour,
				CleanupInterval:   time.Hour,
			},
		},
	}
}

func TestLoaderUsesEnvDefaults(t *testing.T) {
	cfg := testConfig()
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())

	pc := loader.LoadProviderConfig(context.Background(), ProviderGrok)

	assert.Equal(t, "env-grok-key", pc.APIKey)
	assert.Equal(t, "grok-beta", pc.Model)
	assert.True(t, pc.Enabled)
}

func TestLoaderStoredKeyWins(t *testing.T) {
	cfg := testConfig()
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())
	ctx := context.Background()

	require.NoError(t, store.SetProviderKey(ctx, "grok", "stored-key"))

	pc := loader.LoadProviderConfig(ctx, ProviderGrok)
	assert.Equal(t, "stored-key", pc.APIKey)
}

func TestLoaderFiltersPlaceholderKey(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Grok.APIKey = "your_api_key_here"
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())

	pc := loader.LoadProviderConfig(context.Background(), ProviderGrok)
	assert.Empty(t, pc.APIKey)
}

func TestLoaderPriorityFromConfig(t *testing.T) {
	cfg := testConfig()
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())

	order := loader.LoadPriorityOrder(context.Background())
	assert.Equal(t, []ProviderType{ProviderGrok, ProviderOpenAI}, order)
}

func TestLoaderStoredPriorityWins(t *testing.T) {
	cfg := testConfig()
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())
	ctx := context.Background()

	require.NoError(t, loader.SavePriorityOrder(ctx, []ProviderType{ProviderOpenAI, ProviderGrok}))

	order := loader.LoadPriorityOrder(ctx)
	assert.Equal(t, []ProviderType{ProviderOpenAI, ProviderGrok}, order)
}

func TestLoaderDropsUnknownProviders(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Priority = []string{"grok", "claude", "openai"}
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())

	order := loader.LoadPriorityOrder(context.Background())
	assert.Equal(t, []ProviderType{ProviderGrok, ProviderOpenAI}, order)
}

func TestLoaderEmptyOrderFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Priority = []string{"claude"}
	store := storage.NewMemoryStorage(cfg, testLogger())
	loader := NewConfigLoader(cfg, store, testLogger())

	order := loader.LoadPriorityOrder(context.Background())
	assert.Equal(t, KnownProviderTypes, order)
}

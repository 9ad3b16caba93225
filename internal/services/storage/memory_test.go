package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newMemory(t *testing.T, maxMessages int) *MemoryStorage {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type:        "memory",
			MaxMessages: maxMessages,
			Memory: config.MemoryConfig{
				DefaultExpiration: time.Hour,
				CleanupInterval:   time.Hour,
			},
		},
	}
	return NewMemoryStorage(cfg, testLogger())
}

func appendN(t *testing.T, store *MemoryStorage, chatID int64, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		require.NoError(t, store.AppendMessage(ctx, &models.ChatMessage{
			ChatID:    chatID,
			MessageID: i,
			UserID:    int64(i),
			Username:  fmt.Sprintf("user%d", i),
			Content:   fmt.Sprintf("msg %d", i),
			Timestamp: time.Now(),
		}))
	}
}

func TestMessagesRecentNewestFirst(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()
	appendN(t, store, 1, 5)

	recent, err := store.RecentMessages(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 5, recent[0].MessageID)
	assert.Equal(t, 4, recent[1].MessageID)
	assert.Equal(t, 3, recent[2].MessageID)
}

func TestMessagesCappedAtMax(t *testing.T) {
	store := newMemory(t, 3)
	ctx := context.Background()
	appendN(t, store, 1, 5)

	count, err := store.CountMessages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// The oldest messages were pruned.
	recent, err := store.RecentMessages(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[2].MessageID)
}

func TestMessageRangeChronological(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()
	appendN(t, store, 1, 10)

	batch, err := store.MessageRange(ctx, 1, 3, 4)
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, 4, batch[0].MessageID)
	assert.Equal(t, 7, batch[3].MessageID)

	// Past the end clamps; past the count is empty.
	tail, err := store.MessageRange(ctx, 1, 8, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 2)

	empty, err := store.MessageRange(ctx, 1, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMessagesPerChatIsolation(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()
	appendN(t, store, 1, 3)
	appendN(t, store, 2, 1)

	count, err := store.CountMessages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.CountMessages(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func makeFact(id string, userID int64, factType models.FactType, text string, confidence float64) *models.UserFact {
	now := time.Now()
	return &models.UserFact{
		ID:         id,
		UserID:     userID,
		ChatID:     1,
		Username:   "player",
		FactType:   factType,
		Fact:       text,
		Confidence: confidence,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestFactsLifecycle(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.CreateFact(ctx, makeFact("a", 10, models.FactInterest, "любить cs2", 0.9)))
	require.NoError(t, store.CreateFact(ctx, makeFact("b", 10, models.FactSkill, "добре грає на AWP", 0.6)))

	facts, err := store.FactsByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	// Strongest first.
	assert.Equal(t, "a", facts[0].ID)

	found, err := store.FindSimilarFact(ctx, 1, 10, models.FactInterest, "любить cs2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.ID)

	// Wrong type does not match.
	found, err = store.FindSimilarFact(ctx, 1, 10, models.FactGame, "любить cs2")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateFact(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	fact := makeFact("a", 10, models.FactInterest, "любить cs2", 0.5)
	require.NoError(t, store.CreateFact(ctx, fact))

	fact.Confidence = 0.8
	require.NoError(t, store.UpdateFact(ctx, fact))

	facts, err := store.FactsByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.InDelta(t, 0.8, facts[0].Confidence, 0.001)
}

func TestFactsByUsersFiltersConfidence(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.CreateFact(ctx, makeFact("a", 10, models.FactInterest, "сильний факт", 0.9)))
	require.NoError(t, store.CreateFact(ctx, makeFact("b", 10, models.FactInterest, "слабкий факт", 0.3)))
	require.NoError(t, store.CreateFact(ctx, makeFact("c", 11, models.FactOpinion, "інший користувач", 0.7)))

	facts, err := store.FactsByUsers(ctx, 1, []int64{10, 11}, 0.5)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].ID)
	assert.Equal(t, "c", facts[1].ID)
}

func TestDeactivateFact(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.CreateFact(ctx, makeFact("a", 10, models.FactGame, "грає в cs2", 0.9)))
	require.NoError(t, store.CreateFact(ctx, makeFact("b", 10, models.FactGame, "грає в dota", 0.9)))

	count, err := store.DeactivateFact(ctx, 1, 10, "cs2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Already deactivated facts are not counted again.
	count, err = store.DeactivateFact(ctx, 1, 10, "cs2")
	require.NoError(t, err)
	assert.Zero(t, count)

	facts, err := store.FactsByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "b", facts[0].ID)
}

func TestDeactivateUserFacts(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.CreateFact(ctx, makeFact("a", 10, models.FactGame, "грає в cs2", 0.9)))
	require.NoError(t, store.CreateFact(ctx, makeFact("b", 10, models.FactSkill, "сильний AWP", 0.9)))

	count, err := store.DeactivateUserFacts(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	facts, err := store.FactsByUser(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestAISettingsRoundTrip(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	settings, err := store.GetAISettings(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, settings)

	now := time.Now()
	require.NoError(t, store.SaveAISettings(ctx, &models.ChatAISettings{
		ChatID:           1,
		Enabled:          true,
		CooldownMinutes:  5,
		LastResponseTime: &now,
		LastUsedProvider: "grok",
	}))

	settings, err = store.GetAISettings(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, 5, settings.CooldownMinutes)
	assert.Equal(t, "grok", settings.LastUsedProvider)
	require.NotNil(t, settings.LastResponseTime)
}

func TestProviderKeyLatestEnabledWins(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	key, err := store.GetProviderKey(ctx, "grok")
	require.NoError(t, err)
	assert.Nil(t, key)

	require.NoError(t, store.SetProviderKey(ctx, "grok", "old-key"))
	require.NoError(t, store.SetProviderKey(ctx, "grok", "new-key"))

	key, err = store.GetProviderKey(ctx, "grok")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "new-key", key.APIKey)
	assert.True(t, key.Enabled)
}

func TestConfigValues(t *testing.T) {
	store := newMemory(t, 100)
	ctx := context.Background()

	val, err := store.GetConfigValue(ctx, "provider_priority")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, store.SetConfigValue(ctx, "provider_priority", "openai,grok"))

	val, err = store.GetConfigValue(ctx, "provider_priority")
	require.NoError(t, err)
	assert.Equal(t, "openai,grok", val)
}

package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements Storage using in-process caches. Used for
// redis-less deployments and tests. Read-modify-write sequences are
// guarded by a single mutex since go-cache only protects individual
// operations.
type MemoryStorage struct {
	mu          sync.Mutex
	messages    *cache.Cache
	facts       *cache.Cache
	settings    *cache.Cache
	credentials *cache.Cache
	maxMessages int
	logger      *logrus.Logger
}

func NewMemoryStorage(cfg *config.Config, logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		messages:    cache.New(cfg.Storage.Memory.DefaultExpiration, cfg.Storage.Memory.CleanupInterval),
		facts:       cache.New(cache.NoExpiration, cache.NoExpiration),
		settings:    cache.New(cache.NoExpiration, cache.NoExpiration),
		credentials: cache.New(cache.NoExpiration, cache.NoExpiration),
		maxMessages: cfg.Storage.MaxMessages,
		logger:      logger,
	}
}

// Messages

func (m *MemoryStorage) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := messagesKey(msg.ChatID)
	var msgs []models.ChatMessage
	if val, found := m.messages.Get(key); found {
		msgs = val.([]models.ChatMessage)
	}

	msgs = append(msgs, *msg)
	if len(msgs) > m.maxMessages {
		msgs = msgs[len(msgs)-m.maxMessages:]
	}

	m.messages.SetDefault(key, msgs)
	return nil
}

func (m *MemoryStorage) RecentMessages(ctx context.Context, chatID int64, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.chatMessages(chatID)
	if limit > len(msgs) {
		limit = len(msgs)
	}

	// Stored oldest first; return the newest `limit`, newest first.
	out := make([]models.ChatMessage, 0, limit)
	for i := len(msgs) - 1; i >= len(msgs)-limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (m *MemoryStorage) MessageRange(ctx context.Context, chatID int64, offset, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.chatMessages(chatID)
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}

	out := make([]models.ChatMessage, end-offset)
	copy(out, msgs[offset:end])
	return out, nil
}

func (m *MemoryStorage) CountMessages(ctx context.Context, chatID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chatMessages(chatID)), nil
}

func (m *MemoryStorage) chatMessages(chatID int64) []models.ChatMessage {
	if val, found := m.messages.Get(messagesKey(chatID)); found {
		return val.([]models.ChatMessage)
	}
	return nil
}

// Facts

func (m *MemoryStorage) CreateFact(ctx context.Context, fact *models.UserFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := factsKey(fact.ChatID, fact.UserID)
	var facts []models.UserFact
	if val, found := m.facts.Get(key); found {
		facts = val.([]models.UserFact)
	}
	facts = append(facts, *fact)
	m.facts.Set(key, facts, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) UpdateFact(ctx context.Context, fact *models.UserFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := factsKey(fact.ChatID, fact.UserID)
	val, found := m.facts.Get(key)
	if !found {
		return nil
	}

	facts := val.([]models.UserFact)
	for i := range facts {
		if facts[i].ID == fact.ID {
			facts[i] = *fact
			break
		}
	}
	m.facts.Set(key, facts, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) FindSimilarFact(ctx context.Context, chatID, userID int64, factType models.FactType, prefix string) (*models.UserFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.userFacts(chatID, userID) {
		if f.IsActive && f.FactType == factType && strings.Contains(f.Fact, prefix) {
			match := f
			return &match, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FactsByUser(ctx context.Context, chatID, userID int64) ([]models.UserFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterFacts(m.userFacts(chatID, userID), 0), nil
}

func (m *MemoryStorage) FactsByUsers(ctx context.Context, chatID int64, userIDs []int64, minConfidence float64) ([]models.UserFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []models.UserFact
	for _, userID := range userIDs {
		all = append(all, filterFacts(m.userFacts(chatID, userID), minConfidence)...)
	}
	sortFactsByConfidence(all)
	return all, nil
}

func (m *MemoryStorage) DeactivateFact(ctx context.Context, chatID, userID int64, factText string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := factsKey(chatID, userID)
	facts := m.userFacts(chatID, userID)
	count := 0
	for i := range facts {
		if facts[i].IsActive && strings.Contains(facts[i].Fact, factText) {
			facts[i].IsActive = false
			facts[i].UpdatedAt = time.Now()
			count++
		}
	}
	if count > 0 {
		m.facts.Set(key, facts, cache.NoExpiration)
	}
	return count, nil
}

func (m *MemoryStorage) DeactivateUserFacts(ctx context.Context, chatID, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := factsKey(chatID, userID)
	facts := m.userFacts(chatID, userID)
	count := 0
	for i := range facts {
		if facts[i].IsActive {
			facts[i].IsActive = false
			facts[i].UpdatedAt = time.Now()
			count++
		}
	}
	if count > 0 {
		m.facts.Set(key, facts, cache.NoExpiration)
	}
	return count, nil
}

func (m *MemoryStorage) userFacts(chatID, userID int64) []models.UserFact {
	if val, found := m.facts.Get(factsKey(chatID, userID)); found {
		return val.([]models.UserFact)
	}
	return nil
}

// Settings

func (m *MemoryStorage) GetAISettings(ctx context.Context, chatID int64) (*models.ChatAISettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.settings.Get(settingsKey(chatID)); found {
		settings := val.(models.ChatAISettings)
		return &settings, nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveAISettings(ctx context.Context, settings *models.ChatAISettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings.Set(settingsKey(settings.ChatID), *settings, cache.NoExpiration)
	return nil
}

// Credentials

func (m *MemoryStorage) GetProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.ProviderKey
	for _, k := range m.providerKeys(provider) {
		if !k.Enabled {
			continue
		}
		if latest == nil || k.UpdatedAt.After(latest.UpdatedAt) {
			match := k
			latest = &match
		}
	}
	return latest, nil
}

func (m *MemoryStorage) SetProviderKey(ctx context.Context, provider, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.providerKeys(provider)
	for i := range keys {
		keys[i].Enabled = false
	}
	keys = append(keys, models.ProviderKey{
		Provider:  provider,
		APIKey:    apiKey,
		Enabled:   true,
		UpdatedAt: time.Now(),
	})
	m.credentials.Set(keysKey(provider), keys, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) providerKeys(provider string) []models.ProviderKey {
	if val, found := m.credentials.Get(keysKey(provider)); found {
		return val.([]models.ProviderKey)
	}
	return nil
}

func (m *MemoryStorage) GetConfigValue(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.credentials.Get(configKey(key)); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStorage) SetConfigValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credentials.Set(configKey(key), value, cache.NoExpiration)
	return nil
}

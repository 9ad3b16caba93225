package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// RedisStorage implements Storage on top of Redis. Messages live in a
// capped list per chat; facts, settings and credentials are JSON values.
type RedisStorage struct {
	client      *redis.Client
	maxMessages int
	logger      *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client:      client,
		maxMessages: cfg.Storage.MaxMessages,
		logger:      logger,
	}, nil
}

func messagesKey(chatID int64) string { return fmt.Sprintf("messages:%d", chatID) }
func factsKey(chatID, userID int64) string { return fmt.Sprintf("facts:%d:%d", chatID, userID) }
func factUsersKey(chatID int64) string { return fmt.Sprintf("fact_users:%d", chatID) }
func settingsKey(chatID int64) string { return fmt.Sprintf("ai_settings:%d", chatID) }
func keysKey(provider string) string { return fmt.Sprintf("ai_keys:%s", provider) }
func configKey(name string) string { return fmt.Sprintf("ai_config:%s", name) }

// Messages

func (r *RedisStorage) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := messagesKey(msg.ChatID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(r.maxMessages-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) RecentMessages(ctx context.Context, chatID int64, limit int) ([]models.ChatMessage, error) {
	raw, err := r.client.LRange(ctx, messagesKey(chatID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(raw)
}

func (r *RedisStorage) MessageRange(ctx context.Context, chatID int64, offset, limit int) ([]models.ChatMessage, error) {
	key := messagesKey(chatID)
	total, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	// List index 0 is the newest message; chronological position k maps
	// to list index total-1-k.
	end := total - 1 - int64(offset)
	if end < 0 {
		return nil, nil
	}
	start := end - int64(limit) + 1
	if start < 0 {
		start = 0
	}

	raw, err := r.client.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, err
	}

	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}

	// LRange returned newest first, flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *RedisStorage) CountMessages(ctx context.Context, chatID int64) (int, error) {
	n, err := r.client.LLen(ctx, messagesKey(chatID)).Result()
	return int(n), err
}

func decodeMessages(raw []string) ([]models.ChatMessage, error) {
	msgs := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Facts

func (r *RedisStorage) loadFacts(ctx context.Context, chatID, userID int64) ([]models.UserFact, error) {
	data, err := r.client.Get(ctx, factsKey(chatID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var facts []models.UserFact
	if err := json.Unmarshal([]byte(data), &facts); err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *RedisStorage) saveFacts(ctx context.Context, chatID, userID int64, facts []models.UserFact) error {
	data, err := json.Marshal(facts)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, factsKey(chatID, userID), data, 0)
	pipe.SAdd(ctx, factUsersKey(chatID), userID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) CreateFact(ctx context.Context, fact *models.UserFact) error {
	facts, err := r.loadFacts(ctx, fact.ChatID, fact.UserID)
	if err != nil {
		return err
	}
	facts = append(facts, *fact)
	return r.saveFacts(ctx, fact.ChatID, fact.UserID, facts)
}

func (r *RedisStorage) UpdateFact(ctx context.Context, fact *models.UserFact) error {
	facts, err := r.loadFacts(ctx, fact.ChatID, fact.UserID)
	if err != nil {
		return err
	}

	for i := range facts {
		if facts[i].ID == fact.ID {
			facts[i] = *fact
			return r.saveFacts(ctx, fact.ChatID, fact.UserID, facts)
		}
	}
	return fmt.Errorf("fact not found: %s", fact.ID)
}

func (r *RedisStorage) FindSimilarFact(ctx context.Context, chatID, userID int64, factType models.FactType, prefix string) (*models.UserFact, error) {
	facts, err := r.loadFacts(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	for i := range facts {
		f := &facts[i]
		if f.IsActive && f.FactType == factType && strings.Contains(f.Fact, prefix) {
			match := *f
			return &match, nil
		}
	}
	return nil, nil
}

func (r *RedisStorage) FactsByUser(ctx context.Context, chatID, userID int64) ([]models.UserFact, error) {
	facts, err := r.loadFacts(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return filterFacts(facts, 0), nil
}

func (r *RedisStorage) FactsByUsers(ctx context.Context, chatID int64, userIDs []int64, minConfidence float64) ([]models.UserFact, error) {
	var all []models.UserFact
	for _, userID := range userIDs {
		facts, err := r.loadFacts(ctx, chatID, userID)
		if err != nil {
			return nil, err
		}
		all = append(all, filterFacts(facts, minConfidence)...)
	}
	sortFactsByConfidence(all)
	return all, nil
}

func (r *RedisStorage) DeactivateFact(ctx context.Context, chatID, userID int64, factText string) (int, error) {
	facts, err := r.loadFacts(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range facts {
		if facts[i].IsActive && strings.Contains(facts[i].Fact, factText) {
			facts[i].IsActive = false
			facts[i].UpdatedAt = time.Now()
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, r.saveFacts(ctx, chatID, userID, facts)
}

func (r *RedisStorage) DeactivateUserFacts(ctx context.Context, chatID, userID int64) (int, error) {
	facts, err := r.loadFacts(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range facts {
		if facts[i].IsActive {
			facts[i].IsActive = false
			facts[i].UpdatedAt = time.Now()
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, r.saveFacts(ctx, chatID, userID, facts)
}

func filterFacts(facts []models.UserFact, minConfidence float64) []models.UserFact {
	out := make([]models.UserFact, 0, len(facts))
	for _, f := range facts {
		if f.IsActive && f.Confidence >= minConfidence {
			out = append(out, f)
		}
	}
	sortFactsByConfidence(out)
	return out
}

func sortFactsByConfidence(facts []models.UserFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Confidence != facts[j].Confidence {
			return facts[i].Confidence > facts[j].Confidence
		}
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})
}

// Settings

func (r *RedisStorage) GetAISettings(ctx context.Context, chatID int64) (*models.ChatAISettings, error) {
	data, err := r.client.Get(ctx, settingsKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings models.ChatAISettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *RedisStorage) SaveAISettings(ctx context.Context, settings *models.ChatAISettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, settingsKey(settings.ChatID), data, 0).Err()
}

// Credentials

func (r *RedisStorage) GetProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error) {
	keys, err := r.loadProviderKeys(ctx, provider)
	if err != nil {
		return nil, err
	}

	var latest *models.ProviderKey
	for i := range keys {
		k := &keys[i]
		if !k.Enabled {
			continue
		}
		if latest == nil || k.UpdatedAt.After(latest.UpdatedAt) {
			latest = k
		}
	}
	if latest == nil {
		return nil, nil
	}
	match := *latest
	return &match, nil
}

func (r *RedisStorage) SetProviderKey(ctx context.Context, provider, apiKey string) error {
	keys, err := r.loadProviderKeys(ctx, provider)
	if err != nil {
		return err
	}

	for i := range keys {
		keys[i].Enabled = false
	}
	keys = append(keys, models.ProviderKey{
		Provider:  provider,
		APIKey:    apiKey,
		Enabled:   true,
		UpdatedAt: time.Now(),
	})

	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keysKey(provider), data, 0).Err()
}

func (r *RedisStorage) loadProviderKeys(ctx context.Context, provider string) ([]models.ProviderKey, error) {
	data, err := r.client.Get(ctx, keysKey(provider)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []models.ProviderKey
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *RedisStorage) GetConfigValue(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, configKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

func (r *RedisStorage) SetConfigValue(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, configKey(key), value, 0).Err()
}

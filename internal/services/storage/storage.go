package storage

import (
	"context"
	"fmt"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// MessageStore keeps the rolling window of recent chat messages.
type MessageStore interface {
	// AppendMessage stores one message and prunes the chat to the
	// configured maximum, oldest first.
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]models.ChatMessage, error)
	// MessageRange returns messages in chronological order starting at
	// offset from the oldest stored message.
	MessageRange(ctx context.Context, chatID int64, offset, limit int) ([]models.ChatMessage, error)
	CountMessages(ctx context.Context, chatID int64) (int, error)
}

// FactStore persists extracted user facts. Deletion is always a soft
// deactivation, rows are never removed.
type FactStore interface {
	CreateFact(ctx context.Context, fact *models.UserFact) error
	UpdateFact(ctx context.Context, fact *models.UserFact) error
	// FindSimilarFact returns an active fact for (chat, user, type) whose
	// text contains prefix, or nil.
	FindSimilarFact(ctx context.Context, chatID, userID int64, factType models.FactType, prefix string) (*models.UserFact, error)
	// FactsByUser returns active facts ordered by confidence descending.
	FactsByUser(ctx context.Context, chatID, userID int64) ([]models.UserFact, error)
	// FactsByUsers returns active facts for the given users with
	// confidence >= minConfidence, ordered by confidence descending.
	FactsByUsers(ctx context.Context, chatID int64, userIDs []int64, minConfidence float64) ([]models.UserFact, error)
	// DeactivateFact flags active facts whose text contains factText,
	// returning how many were flagged.
	DeactivateFact(ctx context.Context, chatID, userID int64, factText string) (int, error)
	// DeactivateUserFacts flags all active facts of a user, returning the count.
	DeactivateUserFacts(ctx context.Context, chatID, userID int64) (int, error)
}

// SettingsStore persists per-chat AI settings.
type SettingsStore interface {
	// GetAISettings returns nil when no record exists for the chat.
	GetAISettings(ctx context.Context, chatID int64) (*models.ChatAISettings, error)
	SaveAISettings(ctx context.Context, settings *models.ChatAISettings) error
}

// CredentialStore persists provider API keys and named configuration values.
type CredentialStore interface {
	// GetProviderKey returns the most recently updated enabled key for the
	// provider, or nil when none is stored.
	GetProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error)
	// SetProviderKey stores a new key and disables previously stored ones.
	SetProviderKey(ctx context.Context, provider, apiKey string) error
	// GetConfigValue returns "" when the value is unset.
	GetConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// Storage is the full persistence surface consumed by the bot core.
type Storage interface {
	MessageStore
	FactStore
	SettingsStore
	CredentialStore
}

// Manager selects and wraps a storage backend.
type Manager struct {
	Storage
	logger *logrus.Logger
}

// NewManager creates a storage manager for the configured backend.
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var backend Storage

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		backend = redisStorage
	case "memory":
		backend = NewMemoryStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")

	return &Manager{Storage: backend, logger: logger}, nil
}

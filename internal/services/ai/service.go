package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
)

// FactContextSource supplies the known-facts block injected into the
// system prompt. Wired after construction to keep the fact pipeline and
// the AI service independent.
type FactContextSource interface {
	ContextBlock(ctx context.Context, chatID int64, userIDs []int64) (string, error)
}

// ProviderStatus is one row of the provider status report.
type ProviderStatus struct {
	Type     ProviderType
	Enabled  bool
	Status   Status
	Model    string
	Priority int
}

// Service is the AI response generator: it owns the provider chain,
// per-chat settings and the response cooldown.
type Service struct {
	cfg        *config.Config
	store      storage.Storage
	loader     *ConfigLoader
	logger     *logrus.Logger
	factSource FactContextSource

	mu    sync.Mutex
	chain *Chain
}

func NewService(cfg *config.Config, store storage.Storage, logger *logrus.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  store,
		loader: NewConfigLoader(cfg, store, logger),
		logger: logger,
	}
}

// SetFactSource wires the fact pipeline in. May be left unset; the
// system prompt then carries no facts block.
func (s *Service) SetFactSource(src FactContextSource) {
	s.factSource = src
}

// ensureChain builds the provider chain on first use. The chain is
// cached until a credential or priority change invalidates it.
func (s *Service) ensureChain(ctx context.Context) *Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain == nil {
		s.chain = s.buildChain(ctx)
	}
	return s.chain
}

func (s *Service) buildChain(ctx context.Context) *Chain {
	order := s.loader.LoadPriorityOrder(ctx)

	providers := make([]Provider, 0, len(order))
	for i, t := range order {
		pc := s.loader.LoadProviderConfig(ctx, t)
		// The order list is authoritative; stored order overrides the
		// per-provider priority numbers from the environment.
		pc.Priority = i
		switch t {
		case ProviderGrok:
			providers = append(providers, NewGrokProvider(pc, s.logger))
		case ProviderOpenAI:
			providers = append(providers, NewOpenAIProvider(pc, s.logger))
		}
	}

	s.logger.WithField("order", order).Info("AI provider chain built")
	return NewChain(providers, s.logger)
}

// RebuildChain discards the cached chain so the next call reloads
// credentials and priority from storage.
func (s *Service) RebuildChain() {
	s.mu.Lock()
	s.chain = nil
	s.mu.Unlock()
}

// Execute runs the raw provider chain. Used by the fact extraction
// pipeline, which supplies its own prompt.
func (s *Service) Execute(ctx context.Context, messages []Message, opts *Options) ChainResult {
	return s.ensureChain(ctx).Execute(ctx, messages, opts)
}

// GenerateResponse produces a chat reply for the incoming message.
// The returned error is a *ProviderError when every provider failed.
func (s *Service) GenerateResponse(ctx context.Context, msg *models.ChatMessage) (string, error) {
	history, err := s.store.RecentMessages(ctx, msg.ChatID, s.cfg.AI.HistoryLimit)
	if err != nil {
		s.logger.WithError(err).WithField("chat_id", msg.ChatID).Warn("failed to load chat history")
		history = nil
	}

	messages := s.buildMessages(ctx, msg, history)

	result := s.Execute(ctx, messages, nil)
	if !result.Success {
		if result.Err != nil {
			s.logger.WithFields(logrus.Fields{
				"chat_id":    msg.ChatID,
				"attempts":   result.TotalAttempts,
				"error_code": result.Err.Code,
			}).Error("all AI providers failed")
			return "", result.Err
		}
		return "", &ProviderError{Code: ErrAPIError, Message: "empty chain result"}
	}

	s.rememberProvider(ctx, msg.ChatID, result.Provider)

	s.logger.WithFields(logrus.Fields{
		"chat_id":  msg.ChatID,
		"provider": result.Provider,
		"attempts": result.TotalAttempts,
		"tokens":   result.TokensUsed,
	}).Info("AI response generated")

	return result.Content, nil
}

// buildMessages assembles system prompt, facts block, chat history in
// chronological order and the current message.
func (s *Service) buildMessages(ctx context.Context, msg *models.ChatMessage, history []models.ChatMessage) []Message {
	system := s.cfg.AI.SystemPrompt

	if s.factSource != nil {
		userIDs := participantIDs(msg, history)
		block, err := s.factSource.ContextBlock(ctx, msg.ChatID, userIDs)
		if err != nil {
			s.logger.WithError(err).WithField("chat_id", msg.ChatID).Warn("failed to build facts context")
		} else if block != "" {
			system = system + "\n\n" + block
		}
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: system})

	// RecentMessages is newest first; the prompt wants chronological.
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.MessageID == msg.MessageID {
			continue
		}
		messages = append(messages, Message{
			Role:    "user",
			Content: fmt.Sprintf("%s: %s", h.Username, h.Content),
		})
	}

	messages = append(messages, Message{
		Role:    "user",
		Content: fmt.Sprintf("%s: %s", msg.Username, msg.Content),
	})
	return messages
}

func participantIDs(msg *models.ChatMessage, history []models.ChatMessage) []int64 {
	seen := map[int64]bool{msg.UserID: true}
	ids := []int64{msg.UserID}
	for _, h := range history {
		if h.UserID != 0 && !seen[h.UserID] {
			seen[h.UserID] = true
			ids = append(ids, h.UserID)
		}
	}
	return ids
}

func (s *Service) rememberProvider(ctx context.Context, chatID int64, provider ProviderType) {
	settings := s.settingsOrDefault(ctx, chatID)
	settings.LastUsedProvider = string(provider)
	if err := s.store.SaveAISettings(ctx, settings); err != nil {
		s.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to persist last used provider")
	}
}

func (s *Service) settingsOrDefault(ctx context.Context, chatID int64) *models.ChatAISettings {
	settings, err := s.store.GetAISettings(ctx, chatID)
	if err != nil {
		s.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to load AI settings")
	}
	if settings == nil {
		settings = &models.ChatAISettings{
			ChatID:          chatID,
			Enabled:         true,
			CooldownMinutes: s.cfg.AI.CooldownMinutes,
		}
	}
	return settings
}

// IsEnabled reports whether AI responses are on for the chat. Chats
// without a stored record are enabled.
func (s *Service) IsEnabled(ctx context.Context, chatID int64) bool {
	return s.settingsOrDefault(ctx, chatID).Enabled
}

// SetEnabled toggles AI responses for the chat.
func (s *Service) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	settings := s.settingsOrDefault(ctx, chatID)
	settings.Enabled = enabled
	return s.store.SaveAISettings(ctx, settings)
}

// CooldownMinutes returns the chat's cooldown setting.
func (s *Service) CooldownMinutes(ctx context.Context, chatID int64) int {
	return s.settingsOrDefault(ctx, chatID).CooldownMinutes
}

// SetCooldownMinutes updates the chat's cooldown. Zero disables it.
func (s *Service) SetCooldownMinutes(ctx context.Context, chatID int64, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	settings := s.settingsOrDefault(ctx, chatID)
	settings.CooldownMinutes = minutes
	return s.store.SaveAISettings(ctx, settings)
}

// CheckCooldown reports whether an indirect response is allowed and, if
// not, how many whole minutes remain (rounded up).
func (s *Service) CheckCooldown(ctx context.Context, chatID int64) (bool, int) {
	settings := s.settingsOrDefault(ctx, chatID)
	if settings.CooldownMinutes <= 0 || settings.LastResponseTime == nil {
		return true, 0
	}
	elapsed := time.Since(*settings.LastResponseTime)
	cooldown := time.Duration(settings.CooldownMinutes) * time.Minute
	if elapsed >= cooldown {
		return true, 0
	}
	remaining := cooldown - elapsed
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	return false, minutes
}

// UpdateLastResponseTime advances the cooldown clock. Called only after
// indirect (keyword triggered) responses.
func (s *Service) UpdateLastResponseTime(ctx context.Context, chatID int64) error {
	settings := s.settingsOrDefault(ctx, chatID)
	now := time.Now()
	settings.LastResponseTime = &now
	return s.store.SaveAISettings(ctx, settings)
}

// SetProviderKey stores a new API key and rebuilds the chain so the next
// request picks it up.
func (s *Service) SetProviderKey(ctx context.Context, provider, apiKey string) error {
	name := strings.ToLower(strings.TrimSpace(provider))
	if !ValidProviderType(name) {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("API key must not be empty")
	}
	if err := s.store.SetProviderKey(ctx, name, strings.TrimSpace(apiKey)); err != nil {
		return err
	}
	s.RebuildChain()
	s.logger.WithField("provider", name).Info("provider API key updated")
	return nil
}

// SetPriorityOrder stores a new provider order and rebuilds the chain.
func (s *Service) SetPriorityOrder(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("priority order must not be empty")
	}
	order := make([]ProviderType, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if !ValidProviderType(name) {
			return fmt.Errorf("unknown provider: %s", name)
		}
		order = append(order, ProviderType(name))
	}
	if err := s.loader.SavePriorityOrder(ctx, order); err != nil {
		return err
	}
	s.RebuildChain()
	s.logger.WithField("order", order).Info("provider priority updated")
	return nil
}

// ProviderStatuses reports each chain member's readiness in fallback order.
func (s *Service) ProviderStatuses(ctx context.Context) []ProviderStatus {
	chain := s.ensureChain(ctx)
	providers := chain.Providers()
	out := make([]ProviderStatus, 0, len(providers))
	for _, p := range providers {
		cfg := p.Config()
		out = append(out, ProviderStatus{
			Type:     cfg.Type,
			Enabled:  cfg.Enabled,
			Status:   p.IsReady(),
			Model:    cfg.Model,
			Priority: cfg.Priority,
		})
	}
	return out
}

// LastUsedProvider returns the provider that produced the chat's most
// recent response, or "".
func (s *Service) LastUsedProvider(ctx context.Context, chatID int64) string {
	return s.settingsOrDefault(ctx, chatID).LastUsedProvider
}

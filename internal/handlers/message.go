package handlers

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/i18n"
	"github.com/misko-ai-tgbot-go/internal/middleware"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/misko-ai-tgbot-go/internal/services/ai"
	"github.com/misko-ai-tgbot-go/internal/services/facts"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
	"github.com/misko-ai-tgbot-go/internal/triggers"
	"github.com/misko-ai-tgbot-go/pkg/logger"
	"github.com/misko-ai-tgbot-go/pkg/markdown"
)

// MessageHandler wires the per-message pipeline: persist, maybe trigger
// fact extraction, detect a response trigger, generate and send a reply.
type MessageHandler struct {
	bot           *tgbotapi.BotAPI
	cfg           *config.Config
	store         storage.Storage
	aiService     *ai.Service
	factsService  *facts.Service
	detector      *triggers.Detector
	localizer     *i18n.Localizer
	userLimiter   *middleware.UserRateLimiter
	storeThrottle *middleware.ChatThrottle
	extraction    *middleware.ExtractionTrigger
	logger        *logrus.Logger
}

func NewMessageHandler(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	store storage.Storage,
	aiService *ai.Service,
	factsService *facts.Service,
	detector *triggers.Detector,
	localizer *i18n.Localizer,
	userLimiter *middleware.UserRateLimiter,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		bot:           bot,
		cfg:           cfg,
		store:         store,
		aiService:     aiService,
		factsService:  factsService,
		detector:      detector,
		localizer:     localizer,
		userLimiter:   userLimiter,
		storeThrottle: middleware.NewChatThrottle(cfg.RateLimit.StorageInterval),
		extraction:    middleware.NewExtractionTrigger(&cfg.Facts),
		logger:        logger,
	}
}

// HandleMessage processes one incoming group or private message.
func (h *MessageHandler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Text == "" {
		return
	}
	middleware.MessagesTotal.Inc()

	if h.persistMessage(ctx, msg) {
		h.maybeExtractFacts(msg.Chat.ID)
	}

	result := h.detector.Detect(msg, h.bot.Self.UserName, h.bot.Self.ID)
	if !result.ShouldRespond {
		return
	}
	middleware.TriggersTotal.WithLabelValues(string(result.Type)).Inc()

	if !h.aiService.IsEnabled(ctx, msg.Chat.ID) {
		h.logger.WithField("chat_id", msg.Chat.ID).Debug("AI disabled for chat, ignoring trigger")
		return
	}

	// Keyword triggers respect the chat cooldown; direct addresses do not.
	if !result.IsDirect {
		if ok, remaining := h.aiService.CheckCooldown(ctx, msg.Chat.ID); !ok {
			middleware.CooldownSkipsTotal.Inc()
			h.logger.WithFields(logrus.Fields{
				"chat_id":           msg.Chat.ID,
				"remaining_minutes": remaining,
			}).Debug("keyword response suppressed by cooldown")
			return
		}
	}

	if !h.userLimiter.Allow(msg.From.ID) {
		middleware.RateLimitDropsTotal.Inc()
		return
	}

	h.respond(ctx, msg, result)
}

// persistMessage stores the message for history and fact extraction and
// reports whether the write happened. Bursts are throttled per chat; a
// dropped write only costs context and does not count toward the
// extraction threshold.
func (h *MessageHandler) persistMessage(ctx context.Context, msg *tgbotapi.Message) bool {
	if !h.storeThrottle.Allow(msg.Chat.ID) {
		return false
	}
	record := &models.ChatMessage{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  displayName(msg.From),
		Content:   msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
	if err := h.store.AppendMessage(ctx, record); err != nil {
		h.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Warn("failed to store message")
		return false
	}
	return true
}

// maybeExtractFacts fires an asynchronous extraction pass when the chat
// hits the interval or message threshold.
func (h *MessageHandler) maybeExtractFacts(chatID int64) {
	if !h.factsService.Enabled() || !h.extraction.Note(chatID) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		count, err := h.factsService.AnalyzeAndExtractFacts(ctx, chatID)
		if err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Warn("fact extraction pass failed")
			return
		}
		if count > 0 {
			middleware.FactsExtractedTotal.Add(float64(count))
		}
	}()
}

func (h *MessageHandler) respond(ctx context.Context, msg *tgbotapi.Message, result triggers.Result) {
	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	if _, err := h.bot.Request(typing); err != nil {
		h.logger.WithError(err).Debug("failed to send typing action")
	}

	start := time.Now()
	record := &models.ChatMessage{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  displayName(msg.From),
		Content:   msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	content, err := h.aiService.GenerateResponse(ctx, record)
	middleware.ResponseDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.handleGenerationError(msg, err)
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, markdown.ToTelegramHTML(content))
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyToMessageID = msg.MessageID
	if _, err := h.bot.Send(reply); err != nil {
		logger.WithChat(h.logger, msg.Chat.ID, msg.From.ID).WithError(err).Error("failed to send AI response")
		return
	}

	if !result.IsDirect {
		if err := h.aiService.UpdateLastResponseTime(ctx, msg.Chat.ID); err != nil {
			h.logger.WithError(err).Warn("failed to update cooldown timestamp")
		}
	}
}

// handleGenerationError tells the user about rate limits and stays
// silent on everything else; a group bot should not spam error texts.
func (h *MessageHandler) handleGenerationError(msg *tgbotapi.Message, err error) {
	var provErr *ai.ProviderError
	if pe, ok := err.(*ai.ProviderError); ok {
		provErr = pe
	}
	if provErr != nil && provErr.Code == ai.ErrRateLimit {
		reply := tgbotapi.NewMessage(msg.Chat.ID, h.localizer.Get("ai_busy"))
		reply.ReplyToMessageID = msg.MessageID
		if _, sendErr := h.bot.Send(reply); sendErr != nil {
			h.logger.WithError(sendErr).Debug("failed to send busy notice")
		}
		return
	}
	logger.WithChat(h.logger, msg.Chat.ID, msg.From.ID).WithError(err).Error("AI response failed")
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return user.UserName
	}
	return user.FirstName
}

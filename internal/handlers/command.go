package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/i18n"
	"github.com/misko-ai-tgbot-go/internal/middleware"
	"github.com/misko-ai-tgbot-go/internal/services/ai"
	"github.com/misko-ai-tgbot-go/internal/services/facts"
)

// CommandHandler serves the bot's slash commands.
type CommandHandler struct {
	bot              *tgbotapi.BotAPI
	cfg              *config.Config
	aiService        *ai.Service
	factsService     *facts.Service
	localizer        *i18n.Localizer
	progressThrottle *middleware.ChatThrottle
	logger           *logrus.Logger
}

func NewCommandHandler(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	aiService *ai.Service,
	factsService *facts.Service,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		bot:              bot,
		cfg:              cfg,
		aiService:        aiService,
		factsService:     factsService,
		localizer:        localizer,
		progressThrottle: middleware.NewChatThrottle(cfg.RateLimit.CallbackInterval),
		logger:           logger,
	}
}

// HandleCommand dispatches one slash command.
func (h *CommandHandler) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.reply(msg, h.localizer.Get("start_message"))
	case "help":
		h.reply(msg, h.localizer.Get("help_message"))
	case "ai":
		h.handleAI(ctx, msg)
	case "aikey":
		h.handleAIKey(ctx, msg)
	case "aipriority":
		h.handleAIPriority(ctx, msg)
	case "aistatus":
		h.handleAIStatus(ctx, msg)
	case "facts":
		h.handleFacts(ctx, msg)
	case "forgetme":
		h.handleForgetMe(ctx, msg)
	case "analyze_history":
		h.handleAnalyzeHistory(msg)
	}
}

// handleAI serves /ai on, /ai off and /ai cooldown N.
func (h *CommandHandler) handleAI(ctx context.Context, msg *tgbotapi.Message) {
	if !h.requireAdmin(msg) {
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		h.reply(msg, h.localizer.Get("ai_usage"))
		return
	}

	switch args[0] {
	case "on":
		if err := h.aiService.SetEnabled(ctx, msg.Chat.ID, true); err != nil {
			h.replyError(msg, err)
			return
		}
		h.reply(msg, h.localizer.Get("ai_enabled"))
	case "off":
		if err := h.aiService.SetEnabled(ctx, msg.Chat.ID, false); err != nil {
			h.replyError(msg, err)
			return
		}
		h.reply(msg, h.localizer.Get("ai_disabled"))
	case "cooldown":
		if len(args) < 2 {
			h.reply(msg, h.localizer.Get("cooldown_usage"))
			return
		}
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes < 0 {
			h.reply(msg, h.localizer.Get("cooldown_usage"))
			return
		}
		if err := h.aiService.SetCooldownMinutes(ctx, msg.Chat.ID, minutes); err != nil {
			h.replyError(msg, err)
			return
		}
		h.reply(msg, h.localizer.GetWithData("cooldown_set", map[string]interface{}{
			"Minutes": minutes,
		}))
	default:
		h.reply(msg, h.localizer.Get("ai_usage"))
	}
}

// handleAIKey serves /aikey <provider> <key>. Only accepted in private
// chats so keys never land in a group history.
func (h *CommandHandler) handleAIKey(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.Chat.IsPrivate() {
		h.reply(msg, h.localizer.Get("aikey_private_only"))
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		h.reply(msg, h.localizer.Get("aikey_usage"))
		return
	}

	if err := h.aiService.SetProviderKey(ctx, args[0], args[1]); err != nil {
		h.replyError(msg, err)
		return
	}
	h.reply(msg, h.localizer.GetWithData("aikey_set", map[string]interface{}{
		"Provider": strings.ToLower(args[0]),
	}))
}

// handleAIPriority serves /aipriority grok,openai.
func (h *CommandHandler) handleAIPriority(ctx context.Context, msg *tgbotapi.Message) {
	if !h.requireAdmin(msg) {
		return
	}

	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		h.reply(msg, h.localizer.Get("aipriority_usage"))
		return
	}

	if err := h.aiService.SetPriorityOrder(ctx, strings.Split(arg, ",")); err != nil {
		h.replyError(msg, err)
		return
	}
	h.reply(msg, h.localizer.GetWithData("aipriority_set", map[string]interface{}{
		"Order": arg,
	}))
}

func (h *CommandHandler) handleAIStatus(ctx context.Context, msg *tgbotapi.Message) {
	statuses := h.aiService.ProviderStatuses(ctx)

	var b strings.Builder
	b.WriteString(h.localizer.Get("aistatus_header"))
	b.WriteString("\n")
	for _, st := range statuses {
		b.WriteString(fmt.Sprintf("%d. %s — %s", st.Priority+1, st.Type, st.Status))
		if !st.Enabled {
			b.WriteString(" (" + h.localizer.Get("provider_disabled") + ")")
		}
		b.WriteString("\n")
	}

	enabled := h.aiService.IsEnabled(ctx, msg.Chat.ID)
	cooldown := h.aiService.CooldownMinutes(ctx, msg.Chat.ID)
	b.WriteString(h.localizer.GetWithData("aistatus_chat", map[string]interface{}{
		"Enabled":  enabled,
		"Cooldown": cooldown,
	}))
	if last := h.aiService.LastUsedProvider(ctx, msg.Chat.ID); last != "" {
		b.WriteString("\n")
		b.WriteString(h.localizer.GetWithData("aistatus_last_provider", map[string]interface{}{
			"Provider": last,
		}))
	}
	h.reply(msg, b.String())
}

// handleFacts lists what the bot knows about the sender, or about the
// replied-to user.
func (h *CommandHandler) handleFacts(ctx context.Context, msg *tgbotapi.Message) {
	target := msg.From
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		target = msg.ReplyToMessage.From
	}

	userFacts, err := h.factsService.UserFacts(ctx, msg.Chat.ID, target.ID)
	if err != nil {
		h.replyError(msg, err)
		return
	}
	if len(userFacts) == 0 {
		h.reply(msg, h.localizer.GetWithData("facts_none", map[string]interface{}{
			"Username": displayName(target),
		}))
		return
	}

	var b strings.Builder
	b.WriteString(h.localizer.GetWithData("facts_header", map[string]interface{}{
		"Username": displayName(target),
	}))
	b.WriteString("\n")
	for _, f := range userFacts {
		b.WriteString(fmt.Sprintf("- [%s] %s (%.0f%%)\n", f.FactType, f.Fact, f.Confidence*100))
	}
	h.reply(msg, b.String())
}

func (h *CommandHandler) handleForgetMe(ctx context.Context, msg *tgbotapi.Message) {
	count, err := h.factsService.ClearUserFacts(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		h.replyError(msg, err)
		return
	}
	h.reply(msg, h.localizer.GetWithData("forgetme_done", map[string]interface{}{
		"Count": count,
	}))
}

// handleAnalyzeHistory kicks off a full-history fact analysis in the
// background, editing a progress message as batches finish.
func (h *CommandHandler) handleAnalyzeHistory(msg *tgbotapi.Message) {
	if !h.requireAdmin(msg) {
		return
	}
	if !h.factsService.Enabled() {
		h.reply(msg, h.localizer.Get("facts_disabled"))
		return
	}

	progress := tgbotapi.NewMessage(msg.Chat.ID, h.localizer.Get("analyze_started"))
	sent, err := h.bot.Send(progress)
	if err != nil {
		h.logger.WithError(err).Error("failed to send analysis progress message")
		return
	}

	chatID := msg.Chat.ID
	progressID := sent.MessageID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		result, err := h.factsService.AnalyzeEntireHistory(ctx, chatID, facts.HistoryOptions{
			OnProgress: func(processed, total, factCount int) {
				if !h.progressThrottle.Allow(chatID) {
					return
				}
				text := h.localizer.GetWithData("analyze_progress", map[string]interface{}{
					"Processed": processed,
					"Total":     total,
					"Facts":     factCount,
				})
				edit := tgbotapi.NewEditMessageText(chatID, progressID, text)
				if _, err := h.bot.Send(edit); err != nil {
					h.logger.WithError(err).Debug("failed to edit analysis progress")
				}
			},
		})
		if err != nil {
			edit := tgbotapi.NewEditMessageText(chatID, progressID, h.localizer.Get("facts_disabled"))
			h.bot.Send(edit)
			return
		}

		if result.TotalFacts > 0 {
			middleware.FactsExtractedTotal.Add(float64(result.TotalFacts))
		}
		text := h.localizer.GetWithData("analyze_done", map[string]interface{}{
			"Processed": result.TotalProcessed,
			"Facts":     result.TotalFacts,
			"Batches":   result.Batches,
		})
		edit := tgbotapi.NewEditMessageText(chatID, progressID, text)
		if _, err := h.bot.Send(edit); err != nil {
			h.logger.WithError(err).Debug("failed to edit analysis summary")
		}
	}()
}

// requireAdmin allows private chats and group admins.
func (h *CommandHandler) requireAdmin(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	member, err := h.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: msg.Chat.ID,
			UserID: msg.From.ID,
		},
	})
	if err != nil {
		h.logger.WithError(err).Warn("failed to check chat member status")
		return false
	}
	if member.Status == "creator" || member.Status == "administrator" {
		return true
	}
	h.reply(msg, h.localizer.Get("admin_only"))
	return false
}

func (h *CommandHandler) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := h.bot.Send(reply); err != nil {
		h.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Error("failed to send reply")
	}
}

func (h *CommandHandler) replyError(msg *tgbotapi.Message, err error) {
	h.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Error("command failed")
	h.reply(msg, h.localizer.Get("command_failed"))
}

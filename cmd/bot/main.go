package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/handlers"
	"github.com/misko-ai-tgbot-go/internal/i18n"
	"github.com/misko-ai-tgbot-go/internal/middleware"
	"github.com/misko-ai-tgbot-go/internal/services/ai"
	"github.com/misko-ai-tgbot-go/internal/services/facts"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
	"github.com/misko-ai-tgbot-go/internal/triggers"
	"github.com/misko-ai-tgbot-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// .env is optional; deployments usually inject real env vars.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to connect to Telegram")
	}
	appLogger.WithField("username", bot.Self.UserName).Info("Bot authorized")

	store, err := storage.NewManager(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize storage")
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize i18n")
	}

	aiService := ai.NewService(cfg, store, appLogger)
	factsService := facts.NewService(cfg, store, aiService, appLogger)
	aiService.SetFactSource(factsService)

	detector := triggers.NewDetector(cfg.Triggers.BotNames, cfg.Triggers.Keywords)
	userLimiter := middleware.NewUserRateLimiter(&cfg.RateLimit, appLogger)

	messageHandler := handlers.NewMessageHandler(
		bot, cfg, store, aiService, factsService, detector, localizer, userLimiter, appLogger)
	commandHandler := handlers.NewCommandHandler(
		bot, cfg, aiService, factsService, localizer, appLogger)

	middleware.StartMetricsServer(&cfg.Monitoring.Metrics, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		appLogger.Info("Shutting down")
		cancel()
	}()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = cfg.Bot.UpdateTimeout
	updates := bot.GetUpdatesChan(updateConfig)

	appLogger.Info("Bot started")
	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			if update.Message.IsCommand() {
				go commandHandler.HandleCommand(ctx, update.Message)
			} else {
				go messageHandler.HandleMessage(ctx, update.Message)
			}
		}
	}
}

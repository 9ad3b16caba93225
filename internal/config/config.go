package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	AI         AIConfig         `mapstructure:"ai"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Triggers   TriggersConfig   `mapstructure:"triggers"`
	Facts      FactsConfig      `mapstructure:"facts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string `mapstructure:"token"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
}

type AIConfig struct {
	SystemPrompt     string           `mapstructure:"system_prompt"`
	SystemPromptFile string           `mapstructure:"system_prompt_file"`
	CooldownMinutes  int              `mapstructure:"cooldown_minutes"`
	HistoryLimit     int              `mapstructure:"history_limit"`
	Priority         []string         `mapstructure:"priority"`
	Grok             ProviderDefaults `mapstructure:"grok"`
	OpenAI           ProviderDefaults `mapstructure:"openai"`
}

// ProviderDefaults are the environment-level settings for one AI backend.
// A credential stored through the admin commands takes precedence over APIKey.
type ProviderDefaults struct {
	Enabled     bool    `mapstructure:"enabled"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	BaseURL     string  `mapstructure:"base_url"`
	Priority    int     `mapstructure:"priority"`
}

type StorageConfig struct {
	Type        string       `mapstructure:"type"`
	MaxMessages int          `mapstructure:"max_messages"`
	Redis       RedisConfig  `mapstructure:"redis"`
	Memory      MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	StorageInterval   time.Duration `mapstructure:"storage_interval"`
	CallbackInterval  time.Duration `mapstructure:"callback_interval"`
}

type TriggersConfig struct {
	BotNames []string `mapstructure:"bot_names"`
	Keywords []string `mapstructure:"keywords"`
}

type FactsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BatchSize        int           `mapstructure:"batch_size"`
	MinMessages      int           `mapstructure:"min_messages"`
	Interval         time.Duration `mapstructure:"interval"`
	MessageThreshold int           `mapstructure:"message_threshold"`
	HistoryBatchSize int           `mapstructure:"history_batch_size"`
	HistoryMax       int           `mapstructure:"history_max"`
	HistoryDelay     time.Duration `mapstructure:"history_delay"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Directory       string   `mapstructure:"directory"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides, matching the original deployment layout
	viper.BindEnv("bot.token", "BOT_TOKEN")
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")

	viper.BindEnv("ai.grok.api_key", "GROK_API_KEY")
	viper.BindEnv("ai.grok.enabled", "GROK_ENABLED")
	viper.BindEnv("ai.grok.model", "GROK_MODEL")
	viper.BindEnv("ai.grok.max_tokens", "GROK_MAX_TOKENS")
	viper.BindEnv("ai.grok.temperature", "GROK_TEMPERATURE")
	viper.BindEnv("ai.grok.base_url", "GROK_BASE_URL")
	viper.BindEnv("ai.grok.priority", "GROK_PRIORITY")

	viper.BindEnv("ai.openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("ai.openai.enabled", "OPENAI_ENABLED")
	viper.BindEnv("ai.openai.model", "OPENAI_MODEL")
	viper.BindEnv("ai.openai.max_tokens", "OPENAI_MAX_TOKENS")
	viper.BindEnv("ai.openai.temperature", "OPENAI_TEMPERATURE")
	viper.BindEnv("ai.openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("ai.openai.priority", "OPENAI_PRIORITY")

	viper.BindEnv("ai.priority", "AI_PROVIDER_PRIORITY")
	viper.BindEnv("ai.cooldown_minutes", "AI_DEFAULT_COOLDOWN_MINUTES")
	viper.BindEnv("facts.enabled", "FACT_EXTRACTION_ENABLED")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// A prompt file, when present, overrides the inline system prompt.
	if config.AI.SystemPromptFile != "" {
		data, err := os.ReadFile(config.AI.SystemPromptFile)
		if err == nil {
			config.AI.SystemPrompt = strings.TrimSpace(string(data))
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read system prompt file: %w", err)
		}
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("bot.update_timeout", 60)

	viper.SetDefault("ai.cooldown_minutes", 7)
	viper.SetDefault("ai.history_limit", 25)
	viper.SetDefault("ai.priority", []string{"grok", "openai"})

	viper.SetDefault("ai.grok.enabled", true)
	viper.SetDefault("ai.grok.model", "grok-beta")
	viper.SetDefault("ai.grok.max_tokens", 500)
	viper.SetDefault("ai.grok.temperature", 0.9)
	viper.SetDefault("ai.grok.base_url", "https://api.x.ai/v1")
	viper.SetDefault("ai.grok.priority", 1)

	viper.SetDefault("ai.openai.enabled", false)
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.max_tokens", 500)
	viper.SetDefault("ai.openai.temperature", 0.9)
	viper.SetDefault("ai.openai.priority", 2)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.max_messages", 30)
	viper.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	viper.SetDefault("storage.memory.cleanup_interval", time.Hour)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_minute", 20)
	viper.SetDefault("rate_limit.burst", 5)
	viper.SetDefault("rate_limit.storage_interval", time.Second)
	viper.SetDefault("rate_limit.callback_interval", 5*time.Second)

	viper.SetDefault("facts.enabled", true)
	viper.SetDefault("facts.batch_size", 10)
	viper.SetDefault("facts.min_messages", 5)
	viper.SetDefault("facts.interval", 5*time.Minute)
	viper.SetDefault("facts.message_threshold", 10)
	viper.SetDefault("facts.history_batch_size", 20)
	viper.SetDefault("facts.history_max", 10000)
	viper.SetDefault("facts.history_delay", 2*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("monitoring.metrics.enabled", false)
	viper.SetDefault("monitoring.metrics.port", 9090)
	viper.SetDefault("monitoring.metrics.path", "/metrics")

	viper.SetDefault("i18n.default_language", "uk")
	viper.SetDefault("i18n.directory", "configs/i18n")
	viper.SetDefault("i18n.languages", []string{"uk", "en"})
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Storage.Type != "redis" && cfg.Storage.Type != "memory" {
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}

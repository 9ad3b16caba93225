package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/misko-ai-tgbot-go/internal/config"
)

// Localizer resolves user-facing messages by language.
type Localizer struct {
	bundle      *i18n.Bundle
	defaultLang string
	logger      *logrus.Logger
}

// NewLocalizer loads translation files from the configured directory.
// Missing files for non-default languages are logged and skipped.
func NewLocalizer(cfg *config.I18nConfig, logger *logrus.Logger) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		path := filepath.Join(cfg.Directory, lang+".json")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			if lang == cfg.DefaultLanguage {
				return nil, fmt.Errorf("failed to load default language file %s: %w", path, err)
			}
			logger.WithError(err).WithField("language", lang).Warn("failed to load translation file, skipping")
		}
	}

	logger.WithFields(logrus.Fields{
		"default":   cfg.DefaultLanguage,
		"languages": cfg.Languages,
	}).Info("i18n initialized")

	return &Localizer{
		bundle:      bundle,
		defaultLang: cfg.DefaultLanguage,
		logger:      logger,
	}, nil
}

// Get returns the message for the default language.
func (l *Localizer) Get(messageID string) string {
	return l.GetLang(l.defaultLang, messageID, nil)
}

// GetWithData returns the message with template data applied.
func (l *Localizer) GetWithData(messageID string, data map[string]interface{}) string {
	return l.GetLang(l.defaultLang, messageID, data)
}

// GetLang returns the message for a specific language, falling back to
// the default language and finally to the message ID itself.
func (l *Localizer) GetLang(lang, messageID string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(l.bundle, lang, l.defaultLang)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		l.logger.WithError(err).WithField("message_id", messageID).Debug("missing translation")
		return messageID
	}
	return msg
}

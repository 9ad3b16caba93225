package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/misko-ai-tgbot-go/internal/config"
	"github.com/misko-ai-tgbot-go/internal/models"
	"github.com/misko-ai-tgbot-go/internal/services/ai"
	"github.com/misko-ai-tgbot-go/internal/services/storage"
)

const (
	// reinforceBonusLive is added to an existing fact's confidence when a
	// fresh batch repeats it.
	reinforceBonusLive = 0.1
	// reinforceBonusBackfill is the smaller bonus used by full-history
	// analysis, which revisits old messages.
	reinforceBonusBackfill = 0.05

	// similarityPrefixLen is how many leading characters of a new fact
	// must match an existing one to count as the same fact.
	similarityPrefixLen = 20

	// provenanceLimit caps the stored excerpt of the source messages.
	provenanceLimit = 500

	// contextMinConfidence filters which facts reach the system prompt.
	contextMinConfidence = 0.5
	// contextFactsPerUser caps prompt facts per user.
	contextFactsPerUser = 5
)

// ChainExecutor runs a prompt through the AI provider chain. Implemented
// by the AI service.
type ChainExecutor interface {
	Execute(ctx context.Context, messages []ai.Message, opts *ai.Options) ai.ChainResult
}

// HistoryOptions control a full-history analysis run.
type HistoryOptions struct {
	BatchSize   int
	MaxMessages int
	// OnProgress is called after each batch with (processed, total,
	// factsSoFar). A panicking callback does not stop the run.
	OnProgress func(processed, total, facts int)
}

// HistoryResult summarizes a full-history analysis run.
type HistoryResult struct {
	TotalProcessed int
	TotalFacts     int
	Batches        int
}

// Service extracts durable user facts from chat messages via the AI
// chain and persists them for prompt context.
type Service struct {
	cfg      *config.Config
	store    storage.Storage
	executor ChainExecutor
	logger   *logrus.Logger
}

func NewService(cfg *config.Config, store storage.Storage, executor ChainExecutor, logger *logrus.Logger) *Service {
	return &Service{cfg: cfg, store: store, executor: executor, logger: logger}
}

// Enabled reports whether fact extraction is globally on.
func (s *Service) Enabled() bool {
	return s.cfg.Facts.Enabled
}

// extractedFact is the JSON shape the model must return.
type extractedFact struct {
	Username   string  `json:"username"`
	FactType   string  `json:"factType"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`
}

type extractionPayload struct {
	Facts []extractedFact `json:"facts"`
}

// AnalyzeAndExtractFacts runs one extraction pass over the chat's most
// recent messages and returns how many facts were stored or reinforced.
func (s *Service) AnalyzeAndExtractFacts(ctx context.Context, chatID int64) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	recent, err := s.store.RecentMessages(ctx, chatID, s.cfg.Facts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent messages: %w", err)
	}
	if len(recent) < s.cfg.Facts.MinMessages {
		s.logger.WithFields(logrus.Fields{
			"chat_id":  chatID,
			"messages": len(recent),
		}).Debug("not enough messages for fact extraction")
		return 0, nil
	}

	// RecentMessages is newest first; the prompt wants chronological.
	batch := make([]models.ChatMessage, len(recent))
	for i, m := range recent {
		batch[len(recent)-1-i] = m
	}

	count := s.extractFromBatch(ctx, chatID, batch, reinforceBonusLive)
	return count, nil
}

// AnalyzeEntireHistory walks the stored history oldest first in batches,
// extracting facts from each. It only fails when extraction is globally
// disabled; per-batch errors are logged and skipped.
func (s *Service) AnalyzeEntireHistory(ctx context.Context, chatID int64, opts HistoryOptions) (HistoryResult, error) {
	var result HistoryResult
	if !s.Enabled() {
		return result, fmt.Errorf("fact extraction is disabled")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.Facts.HistoryBatchSize
	}
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 || maxMessages > s.cfg.Facts.HistoryMax {
		maxMessages = s.cfg.Facts.HistoryMax
	}

	total, err := s.store.CountMessages(ctx, chatID)
	if err != nil {
		s.logger.WithError(err).WithField("chat_id", chatID).Error("failed to count messages for history analysis")
		return result, nil
	}
	if total > maxMessages {
		total = maxMessages
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"messages":   total,
		"batch_size": batchSize,
	}).Info("starting full history fact analysis")

	for offset := 0; offset < total; offset += batchSize {
		limit := batchSize
		if offset+limit > total {
			limit = total - offset
		}
		batch, err := s.store.MessageRange(ctx, chatID, offset, limit)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"chat_id": chatID,
				"offset":  offset,
			}).Warn("failed to load history batch, skipping")
			continue
		}
		if len(batch) == 0 {
			break
		}

		result.TotalFacts += s.extractFromBatch(ctx, chatID, batch, reinforceBonusBackfill)
		result.TotalProcessed += len(batch)
		result.Batches++

		s.notifyProgress(opts.OnProgress, result.TotalProcessed, total, result.TotalFacts)

		if result.TotalProcessed < total {
			select {
			case <-ctx.Done():
				s.logger.WithField("chat_id", chatID).Warn("history analysis cancelled")
				return result, nil
			case <-time.After(s.cfg.Facts.HistoryDelay):
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"processed": result.TotalProcessed,
		"facts":     result.TotalFacts,
		"batches":   result.Batches,
	}).Info("full history fact analysis finished")
	return result, nil
}

func (s *Service) notifyProgress(cb func(processed, total, facts int), processed, total, facts int) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Warn("progress callback panicked")
		}
	}()
	cb(processed, total, facts)
}

// extractFromBatch prompts the chain over one chronological batch and
// persists the parsed facts. Any chain or parse failure yields zero facts.
func (s *Service) extractFromBatch(ctx context.Context, chatID int64, batch []models.ChatMessage, bonus float64) int {
	prompt := buildExtractionPrompt(batch)
	result := s.executor.Execute(ctx, []ai.Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: prompt},
	}, nil)
	if !result.Success {
		if result.Err != nil {
			s.logger.WithFields(logrus.Fields{
				"chat_id":    chatID,
				"error_code": result.Err.Code,
			}).Warn("fact extraction request failed")
		}
		return 0
	}

	parsed, err := parseExtraction(result.Content)
	if err != nil {
		s.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to parse fact extraction response")
		return 0
	}

	userIDs := usernameIndex(batch)
	excerpt := provenanceExcerpt(batch)

	count := 0
	for _, f := range parsed.Facts {
		if s.storeFact(ctx, chatID, f, userIDs, excerpt, bonus) {
			count++
		}
	}
	return count
}

func (s *Service) storeFact(ctx context.Context, chatID int64, f extractedFact, userIDs map[string]int64, excerpt string, bonus float64) bool {
	factType := models.FactType(strings.TrimSpace(f.FactType))
	text := strings.TrimSpace(f.Fact)
	if text == "" || !models.ValidFactType(string(factType)) {
		return false
	}

	userID, ok := userIDs[strings.ToLower(strings.TrimSpace(f.Username))]
	if !ok {
		s.logger.WithField("username", f.Username).Debug("extracted fact for unknown user, skipping")
		return false
	}

	confidence := f.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	prefix := text
	if runes := []rune(prefix); len(runes) > similarityPrefixLen {
		prefix = string(runes[:similarityPrefixLen])
	}

	existing, err := s.store.FindSimilarFact(ctx, chatID, userID, factType, prefix)
	if err != nil {
		s.logger.WithError(err).Warn("similar fact lookup failed")
		return false
	}

	if existing != nil {
		existing.Confidence = existing.Confidence + bonus
		if existing.Confidence > 1 {
			existing.Confidence = 1
		}
		existing.UpdatedAt = time.Now()
		if err := s.store.UpdateFact(ctx, existing); err != nil {
			s.logger.WithError(err).Warn("failed to reinforce fact")
			return false
		}
		s.logger.WithFields(logrus.Fields{
			"chat_id":    chatID,
			"user_id":    userID,
			"fact_type":  factType,
			"confidence": existing.Confidence,
		}).Debug("fact reinforced")
		return true
	}

	now := time.Now()
	fact := &models.UserFact{
		ID:            uuid.NewString(),
		UserID:        userID,
		ChatID:        chatID,
		Username:      strings.TrimSpace(f.Username),
		FactType:      factType,
		Fact:          text,
		Confidence:    confidence,
		ExtractedFrom: excerpt,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateFact(ctx, fact); err != nil {
		s.logger.WithError(err).Warn("failed to store fact")
		return false
	}
	s.logger.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"user_id":    userID,
		"fact_type":  factType,
		"confidence": confidence,
	}).Debug("fact stored")
	return true
}

// ContextBlock renders the known-facts section of the system prompt for
// the given users. Empty when nothing qualifies.
func (s *Service) ContextBlock(ctx context.Context, chatID int64, userIDs []int64) (string, error) {
	if !s.Enabled() || len(userIDs) == 0 {
		return "", nil
	}

	facts, err := s.store.FactsByUsers(ctx, chatID, userIDs, contextMinConfidence)
	if err != nil {
		return "", fmt.Errorf("failed to load user facts: %w", err)
	}
	if len(facts) == 0 {
		return "", nil
	}

	perUser := make(map[int64][]models.UserFact)
	order := make([]int64, 0, len(userIDs))
	for _, f := range facts {
		if len(perUser[f.UserID]) == 0 {
			order = append(order, f.UserID)
		}
		if len(perUser[f.UserID]) < contextFactsPerUser {
			perUser[f.UserID] = append(perUser[f.UserID], f)
		}
	}

	var b strings.Builder
	b.WriteString("=== KNOWN FACTS ABOUT USERS ===\n")
	for _, id := range order {
		userFacts := perUser[id]
		b.WriteString(fmt.Sprintf("%s:\n", userFacts[0].Username))
		for _, f := range userFacts {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", f.FactType, f.Fact))
		}
	}
	b.WriteString("Use these facts naturally in conversation when relevant.")
	return b.String(), nil
}

// UserFacts returns a user's active facts, strongest first.
func (s *Service) UserFacts(ctx context.Context, chatID, userID int64) ([]models.UserFact, error) {
	return s.store.FactsByUser(ctx, chatID, userID)
}

// ClearUserFacts deactivates everything known about a user in the chat
// and returns how many facts were removed.
func (s *Service) ClearUserFacts(ctx context.Context, chatID, userID int64) (int, error) {
	return s.store.DeactivateUserFacts(ctx, chatID, userID)
}

// DeleteUserFact deactivates facts whose text contains factText.
func (s *Service) DeleteUserFact(ctx context.Context, chatID, userID int64, factText string) (int, error) {
	return s.store.DeactivateFact(ctx, chatID, userID, factText)
}

const extractionSystemPrompt = `You extract durable facts about chat participants from message transcripts.
Return ONLY a JSON object, no prose, in this exact shape:
{"facts":[{"username":"...","factType":"...","fact":"...","confidence":0.8}]}
Allowed factType values: interest, preference, personal_info, skill, opinion, game.
Rules:
- Only record facts that will still be true next week. Skip moods, one-off events and jokes.
- fact is a short third-person statement in the language the user wrote in.
- confidence is between 0 and 1: 0.9+ for direct statements, lower for inference.
- username must be one of the usernames in the transcript.
- Return {"facts":[]} when there is nothing worth keeping.`

func buildExtractionPrompt(batch []models.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for _, m := range batch {
		b.WriteString(fmt.Sprintf("%s: %s\n", m.Username, m.Content))
	}
	b.WriteString("\nExtract the facts.")
	return b.String()
}

// parseExtraction decodes the model output, tolerating markdown code
// fences around the JSON.
func parseExtraction(content string) (*extractionPayload, error) {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid extraction JSON: %w", err)
	}
	return &payload, nil
}

func usernameIndex(batch []models.ChatMessage) map[string]int64 {
	idx := make(map[string]int64, len(batch))
	for _, m := range batch {
		if m.Username != "" {
			idx[strings.ToLower(m.Username)] = m.UserID
		}
	}
	return idx
}

func provenanceExcerpt(batch []models.ChatMessage) string {
	var parts []string
	for _, m := range batch {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Username, m.Content))
	}
	joined := strings.Join(parts, " | ")
	if runes := []rune(joined); len(runes) > provenanceLimit {
		joined = string(runes[:provenanceLimit])
	}
	return joined
}

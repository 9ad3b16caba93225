package models

import (
	"time"
)

// ChatMessage is a single stored group-chat message used for AI context
// building and fact extraction.
type ChatMessage struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FactType classifies what kind of information a UserFact carries.
type FactType string

const (
	FactInterest     FactType = "interest"
	FactPreference   FactType = "preference"
	FactPersonalInfo FactType = "personal_info"
	FactSkill        FactType = "skill"
	FactOpinion      FactType = "opinion"
	FactGame         FactType = "game"
)

// ValidFactType reports whether t is one of the known fact categories.
func ValidFactType(t string) bool {
	switch FactType(t) {
	case FactInterest, FactPreference, FactPersonalInfo, FactSkill, FactOpinion, FactGame:
		return true
	}
	return false
}

// UserFact is a typed, confidence-scored statement inferred about a user
// from chat content. Facts are never physically deleted; IsActive is a
// soft flag.
type UserFact struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	ChatID        int64     `json:"chat_id"`
	Username      string    `json:"username,omitempty"`
	FactType      FactType  `json:"fact_type"`
	Fact          string    `json:"fact"`
	Confidence    float64   `json:"confidence"`
	ExtractedFrom string    `json:"extracted_from,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChatAISettings is the per-chat AI configuration record.
type ChatAISettings struct {
	ChatID           int64      `json:"chat_id"`
	Enabled          bool       `json:"enabled"`
	CooldownMinutes  int        `json:"cooldown_minutes"`
	LastResponseTime *time.Time `json:"last_response_time,omitempty"`
	LastUsedProvider string     `json:"last_used_provider,omitempty"`
}

// ProviderKey is a stored API credential for one AI provider.
type ProviderKey struct {
	Provider  string    `json:"provider"`
	APIKey    string    `json:"api_key"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

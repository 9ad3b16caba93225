package triggers

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Type names what made the bot respond.
type Type string

const (
	TypeNone    Type = "none"
	TypeMention Type = "mention"
	TypeReply   Type = "reply"
	TypeKeyword Type = "keyword"
)

// Result is the outcome of trigger detection. Direct triggers (mention,
// reply) bypass the response cooldown; keyword triggers do not.
type Result struct {
	ShouldRespond bool
	IsDirect      bool
	Type          Type
}

// DefaultBotNames are the aliases users call the bot by, Ukrainian and
// transliterated forms included.
var DefaultBotNames = []string{
	"місько", "міхал", "міха", "михайло", "міша", "місю",
	"misko", "mikhal", "mikha", "mykhailo", "misha", "misyu",
	"бот", "bot", "грок", "grok",
}

// DefaultKeywords are gaming topics the bot chimes in on without being
// addressed. Keyword responses are rate limited by the chat cooldown.
var DefaultKeywords = []string{
	// English
	"cs2", "cs:2", "counter-strike", "counter strike", "csgo", "cs:go",
	"faceit", "valve", "steam", "awp", "ak47", "ak-47", "m4a4", "m4a1",
	"deagle", "desert eagle", "peek", "peeking", "clutch", "clutching",
	"eco", "force buy", "full buy", "headshot", "hs", "spray", "tap",
	"rush", "rotate", "plant", "defuse", "bomb", "smoke", "flash",
	"molly", "molotov", "nade", "grenade", "dust2", "mirage", "inferno",
	"ancient", "anubis", "nuke", "vertigo", "overpass",
	"dota", "dota 2", "valorant", "apex", "apex legends",

	// Ukrainian
	"калаш", "калашніков", "авп", "авпшка", "емка", "емочка",
	"пік", "пікнути", "клатч", "клатчити", "ейм", "аїм",
	"флешка", "хедшот", "спрей", "раш", "рашити",
	"дефка", "дефузити", "плант", "плантити", "смок", "моля",
	"дот", "дота", "валорант",

	// Mixed/slang
	"ez", "ggwp", "gg wp", "gl hf", "glhf", "ns", "nice shot",
	"рагає", "рофлить", "тільтує", "читер", "хакер",
}

// Detector decides whether an incoming message should get an AI response.
type Detector struct {
	botNames []string
	keywords []string
}

// NewDetector creates a detector; empty lists fall back to the defaults.
func NewDetector(botNames, keywords []string) *Detector {
	if len(botNames) == 0 {
		botNames = DefaultBotNames
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	d := &Detector{
		botNames: lowerAll(botNames),
		keywords: lowerAll(keywords),
	}
	return d
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// Detect classifies the message. Checks run in priority order; the first
// match wins.
func (d *Detector) Detect(msg *tgbotapi.Message, botUsername string, botID int64) Result {
	none := Result{Type: TypeNone}

	if msg == nil || msg.Text == "" {
		return none
	}
	if msg.From != nil && msg.From.IsBot {
		return none
	}
	if msg.IsCommand() {
		return none
	}

	text := strings.ToLower(msg.Text)
	username := strings.ToLower(botUsername)

	if hasMentionEntity(msg, username) {
		return Result{ShouldRespond: true, IsDirect: true, Type: TypeMention}
	}

	if username != "" {
		if strings.HasPrefix(text, "@"+username) ||
			strings.HasPrefix(text, username+",") ||
			strings.HasPrefix(text, username+" ") {
			return Result{ShouldRespond: true, IsDirect: true, Type: TypeMention}
		}
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == botID {
		return Result{ShouldRespond: true, IsDirect: true, Type: TypeReply}
	}

	for _, name := range d.botNames {
		if containsWord(text, name) {
			return Result{ShouldRespond: true, IsDirect: true, Type: TypeMention}
		}
	}

	for _, kw := range d.keywords {
		if containsWord(text, kw) {
			return Result{ShouldRespond: true, IsDirect: false, Type: TypeKeyword}
		}
	}

	return none
}

// DetectedKeywords returns every configured bot name and keyword present
// in the text as a whole word, for logging and debugging.
func (d *Detector) DetectedKeywords(text string) []string {
	text = strings.ToLower(text)
	var found []string
	for _, name := range d.botNames {
		if containsWord(text, name) {
			found = append(found, name)
		}
	}
	for _, kw := range d.keywords {
		if containsWord(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// hasMentionEntity checks the message entities for an @mention of the
// bot. Entity offsets are UTF-16 code units.
func hasMentionEntity(msg *tgbotapi.Message, username string) bool {
	if username == "" {
		return false
	}
	units := utf16.Encode([]rune(msg.Text))
	for _, entity := range msg.Entities {
		if entity.Type != "mention" {
			continue
		}
		if entity.Offset < 0 || entity.Offset+entity.Length > len(units) {
			continue
		}
		mention := string(utf16.Decode(units[entity.Offset : entity.Offset+entity.Length]))
		if strings.ToLower(mention) == "@"+username {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in text without a letter,
// digit or underscore glued to either side. Go regexps have no
// lookaround, so boundaries are checked on the adjacent runes directly.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)

		before, beforeSize := utf8.DecodeLastRuneInString(text[:idx])
		after, afterSize := utf8.DecodeRuneInString(text[end:])
		boundedLeft := beforeSize == 0 || !isWordRune(before)
		boundedRight := afterSize == 0 || !isWordRune(after)
		if boundedLeft && boundedRight {
			return true
		}
		start = idx + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' ||
		unicode.IsDigit(r) ||
		unicode.Is(unicode.Latin, r) ||
		unicode.Is(unicode.Cyrillic, r)
}

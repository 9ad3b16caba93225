package triggers

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

const (
	testBotUsername = "misko_bot"
	testBotID       = int64(42)
)

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: 7, UserName: "player"},
		Chat: &tgbotapi.Chat{ID: 1},
	}
}

func TestDetect(t *testing.T) {
	d := NewDetector(nil, nil)

	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want Result
	}{
		{
			name: "plain chatter ignored",
			msg:  textMessage("пішли обідати"),
			want: Result{Type: TypeNone},
		},
		{
			name: "bot name as word triggers mention",
			msg:  textMessage("Міша, що нового?"),
			want: Result{ShouldRespond: true, IsDirect: true, Type: TypeMention},
		},
		{
			name: "bot name inside another word ignored",
			msg:  textMessage("ми відмішалися від них"),
			want: Result{Type: TypeNone},
		},
		{
			name: "latin alias triggers mention",
			msg:  textMessage("grok is that true?"),
			want: Result{ShouldRespond: true, IsDirect: true, Type: TypeMention},
		},
		{
			name: "username prefix with comma",
			msg:  textMessage("misko_bot, розкажи анекдот"),
			want: Result{ShouldRespond: true, IsDirect: true, Type: TypeMention},
		},
		{
			name: "at username prefix",
			msg:  textMessage("@misko_bot привіт"),
			want: Result{ShouldRespond: true, IsDirect: true, Type: TypeMention},
		},
		{
			name: "gaming keyword is indirect",
			msg:  textMessage("хто сьогодні в cs2?"),
			want: Result{ShouldRespond: true, IsDirect: false, Type: TypeKeyword},
		},
		{
			name: "keyword glued to digits ignored",
			msg:  textMessage("рахунок був cs21 на табло"),
			want: Result{Type: TypeNone},
		},
		{
			name: "keyword with punctuation boundary",
			msg:  textMessage("Клатч? Та ну"),
			want: Result{ShouldRespond: true, IsDirect: false, Type: TypeKeyword},
		},
		{
			name: "empty text ignored",
			msg:  textMessage(""),
			want: Result{Type: TypeNone},
		},
		{
			name: "nil message ignored",
			msg:  nil,
			want: Result{Type: TypeNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.msg, testBotUsername, testBotID)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectIgnoresBots(t *testing.T) {
	d := NewDetector(nil, nil)
	msg := textMessage("місько привіт")
	msg.From.IsBot = true

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.False(t, got.ShouldRespond)
}

func TestDetectIgnoresCommands(t *testing.T) {
	d := NewDetector(nil, nil)
	msg := textMessage("/start місько")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.False(t, got.ShouldRespond)
}

func TestDetectMentionEntity(t *testing.T) {
	d := NewDetector(nil, nil)
	// The entity offset is in UTF-16 units; the leading Cyrillic words
	// occupy one unit per rune here.
	text := "агов @misko_bot слухай"
	msg := textMessage(text)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "mention", Offset: 5, Length: 10}}

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.Equal(t, Result{ShouldRespond: true, IsDirect: true, Type: TypeMention}, got)
}

func TestDetectReplyToBot(t *testing.T) {
	d := NewDetector(nil, nil)
	msg := textMessage("а ти як думаєш?")
	msg.ReplyToMessage = &tgbotapi.Message{
		From: &tgbotapi.User{ID: testBotID, IsBot: true},
	}

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.Equal(t, Result{ShouldRespond: true, IsDirect: true, Type: TypeReply}, got)
}

func TestDetectReplyWithKeywordStaysReply(t *testing.T) {
	d := NewDetector(nil, nil)
	msg := textMessage("може в cs2?")
	msg.ReplyToMessage = &tgbotapi.Message{
		From: &tgbotapi.User{ID: testBotID, IsBot: true},
	}

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.Equal(t, TypeReply, got.Type)
	assert.True(t, got.IsDirect)
}

func TestDetectReplyToSomeoneElse(t *testing.T) {
	d := NewDetector(nil, nil)
	msg := textMessage("згоден")
	msg.ReplyToMessage = &tgbotapi.Message{
		From: &tgbotapi.User{ID: 99},
	}

	got := d.Detect(msg, testBotUsername, testBotID)
	assert.False(t, got.ShouldRespond)
}

func TestDetectedKeywords(t *testing.T) {
	d := NewDetector(nil, nil)

	found := d.DetectedKeywords("зіграємо в cs2 на faceit?")
	assert.ElementsMatch(t, []string{"cs2", "faceit"}, found)

	assert.Empty(t, d.DetectedKeywords("просто розмова"))
}

func TestDetectedKeywordsIncludesBotNames(t *testing.T) {
	d := NewDetector(nil, nil)

	found := d.DetectedKeywords("місько, зарубимо в cs2?")
	assert.Contains(t, found, "місько")
	assert.Contains(t, found, "cs2")
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text string
		word string
		want bool
	}{
		{"cs2 зараз", "cs2", true},
		{"cs21", "cs2", false},
		{"acs2", "cs2", false},
		{"(cs2)", "cs2", true},
		{"бот!", "бот", true},
		{"робот", "бот", false},
		{"бот_шмот", "бот", false},
		{"місько", "місько", true},
		{"", "бот", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsWord(tt.text, tt.word), "text=%q word=%q", tt.text, tt.word)
	}
}

func TestCustomLists(t *testing.T) {
	d := NewDetector([]string{"шеф"}, []string{"dota"})

	got := d.Detect(textMessage("шеф, усе пропало"), testBotUsername, testBotID)
	assert.Equal(t, TypeMention, got.Type)

	got = d.Detect(textMessage("хто в dota вечором"), testBotUsername, testBotID)
	assert.Equal(t, TypeKeyword, got.Type)
}

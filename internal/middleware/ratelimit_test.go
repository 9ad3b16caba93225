package middleware

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/misko-ai-tgbot-go/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestUserRateLimiterBurst(t *testing.T) {
	cfg := &config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 6,
		Burst:             2,
	}
	rl := NewUserRateLimiter(cfg, testLogger())

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))

	// Another user has their own bucket.
	assert.True(t, rl.Allow(2))
}

func TestUserRateLimiterDisabled(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: false}
	rl := NewUserRateLimiter(cfg, testLogger())

	for i := 0; i < 50; i++ {
		assert.True(t, rl.Allow(1))
	}
}

func TestChatThrottle(t *testing.T) {
	th := NewChatThrottle(50 * time.Millisecond)

	assert.True(t, th.Allow(1))
	assert.False(t, th.Allow(1))
	assert.True(t, th.Allow(2))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, th.Allow(1))
}

func TestExtractionTriggerFirstMessageFires(t *testing.T) {
	trigger := NewExtractionTrigger(&config.FactsConfig{
		Interval:         time.Hour,
		MessageThreshold: 1000,
	})

	// An unseen chat has never run an extraction pass, so its first
	// message is already past due.
	assert.True(t, trigger.Note(1))
	assert.False(t, trigger.Note(1))
}

func TestExtractionTriggerMessageThreshold(t *testing.T) {
	trigger := NewExtractionTrigger(&config.FactsConfig{
		Interval:         time.Hour,
		MessageThreshold: 3,
	})

	assert.True(t, trigger.Note(1))

	// Firing resets the counter; the threshold takes over.
	assert.False(t, trigger.Note(1))
	assert.False(t, trigger.Note(1))
	assert.True(t, trigger.Note(1))

	assert.False(t, trigger.Note(1))
	assert.False(t, trigger.Note(1))
	assert.True(t, trigger.Note(1))
}

func TestExtractionTriggerInterval(t *testing.T) {
	trigger := NewExtractionTrigger(&config.FactsConfig{
		Interval:         30 * time.Millisecond,
		MessageThreshold: 1000,
	})

	assert.True(t, trigger.Note(1))
	assert.False(t, trigger.Note(1))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, trigger.Note(1))
	assert.False(t, trigger.Note(1))
}

func TestExtractionTriggerPerChat(t *testing.T) {
	trigger := NewExtractionTrigger(&config.FactsConfig{
		Interval:         time.Hour,
		MessageThreshold: 2,
	})

	assert.True(t, trigger.Note(1))
	assert.True(t, trigger.Note(2))

	assert.False(t, trigger.Note(1))
	assert.False(t, trigger.Note(2))
	assert.True(t, trigger.Note(1))
	assert.True(t, trigger.Note(2))
}

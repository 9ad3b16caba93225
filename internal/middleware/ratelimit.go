package middleware

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/misko-ai-tgbot-go/internal/config"
)

// UserRateLimiter caps per-user AI requests with a token bucket. Idle
// user entries are evicted periodically.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	cfg      *config.RateLimitConfig
	logger   *logrus.Logger
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *UserRateLimiter {
	rl := &UserRateLimiter{
		limiters: make(map[int64]*userLimiter),
		cfg:      cfg,
		logger:   logger,
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the user may make a request right now.
func (rl *UserRateLimiter) Allow(userID int64) bool {
	if !rl.cfg.Enabled {
		return true
	}

	rl.mu.Lock()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.cfg.RequestsPerMinute)/60.0), rl.cfg.Burst),
		}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	rl.mu.Unlock()

	allowed := ul.limiter.Allow()
	if !allowed {
		rl.logger.WithField("user_id", userID).Debug("user rate limit exceeded")
	}
	return allowed
}

func (rl *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		rl.mu.Lock()
		for id, ul := range rl.limiters {
			if ul.lastSeen.Before(cutoff) {
				delete(rl.limiters, id)
			}
		}
		rl.mu.Unlock()
	}
}

// ChatThrottle drops repeated events from the same chat within a fixed
// interval. Used to throttle message persistence and progress edits.
type ChatThrottle struct {
	mu       sync.Mutex
	last     map[int64]time.Time
	interval time.Duration
}

func NewChatThrottle(interval time.Duration) *ChatThrottle {
	return &ChatThrottle{
		last:     make(map[int64]time.Time),
		interval: interval,
	}
}

// Allow reports whether the chat's interval has elapsed and, if so,
// advances the clock.
func (t *ChatThrottle) Allow(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[chatID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[chatID] = now
	return true
}

// ExtractionTrigger decides when a chat is due for a fact extraction
// pass: either the interval elapsed or enough messages accumulated.
// Firing resets both conditions.
type ExtractionTrigger struct {
	mu        sync.Mutex
	state     map[int64]*extractionState
	interval  time.Duration
	threshold int
}

type extractionState struct {
	lastRun  time.Time
	messages int
}

func NewExtractionTrigger(cfg *config.FactsConfig) *ExtractionTrigger {
	return &ExtractionTrigger{
		state:     make(map[int64]*extractionState),
		interval:  cfg.Interval,
		threshold: cfg.MessageThreshold,
	}
}

// Note records one stored message for the chat and reports whether an
// extraction pass should fire now. An unseen chat has a zero lastRun,
// so its first message satisfies the interval condition immediately.
func (e *ExtractionTrigger) Note(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[chatID]
	if !ok {
		st = &extractionState{}
		e.state[chatID] = st
	}
	st.messages++

	if st.messages >= e.threshold || time.Since(st.lastRun) >= e.interval {
		st.messages = 0
		st.lastRun = time.Now()
		return true
	}
	return false
}

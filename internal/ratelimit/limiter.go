// Package ratelimit provides a simple token-bucket throttle that paces the
// marketplace collector and the species index walk (§5), independent of the
// per-request retry/backoff done by internal/httpfetch. The catalog
// adapters' "sleep after every N requests" floors are inline sleeps in
// those adapters and do not use this package.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter implements a token bucket rate limiter
type Limiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	mu         sync.Mutex
	lastRefill time.Time
}

// NewLimiter creates a new token bucket rate limiter
// maxTokens: maximum number of tokens in the bucket
// refillRate: how often to add one token to the bucket
func NewLimiter(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed immediately
// Returns true if a token is available and consumed
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()

	if l.tokens > 0 {
		l.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available
func (l *Limiter) Wait() {
	for !l.Allow() {
		// Sleep for a short time before checking again
		time.Sleep(l.refillRate / time.Duration(l.maxTokens))
	}
}

// WaitWithTimeout waits for a token with a timeout
// Returns true if token was acquired, false if timeout exceeded
func (l *Limiter) WaitWithTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if l.Allow() {
			return true
		}

		// Sleep for a short time before checking again
		sleepTime := l.refillRate / time.Duration(l.maxTokens)
		if sleepTime > time.Until(deadline) {
			sleepTime = time.Until(deadline)
		}
		if sleepTime > 0 {
			time.Sleep(sleepTime)
		}
	}

	return false
}

// TokensAvailable returns the current number of tokens available
func (l *Limiter) TokensAvailable() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()
	return l.tokens
}

// refillTokens adds tokens based on elapsed time
// Must be called with mutex held
func (l *Limiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)

	// Calculate how many tokens to add
	tokensToAdd := int(elapsed / l.refillRate)

	if tokensToAdd > 0 {
		l.tokens = min(l.maxTokens, l.tokens+tokensToAdd)
		l.lastRefill = now
	}
}

// min returns the minimum of two integers
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SourceLimiters holds one throttle per external source the catalog and
// marketplace collector reach out to.
type SourceLimiters struct {
	DualLanguageAPI *Limiter
	EnglishAPI      *Limiter
	JapaneseIndex   *Limiter
	Marketplace     *Limiter
}

// NewDefaultSourceLimiters returns conservative per-source floors. Bucket
// sizes stay small so a burst can't outrun the source's own rate limit; the
// refill interval is the effective steady-state pace.
func NewDefaultSourceLimiters() *SourceLimiters {
	return &SourceLimiters{
		DualLanguageAPI: NewLimiter(5, 250*time.Millisecond),
		EnglishAPI:      NewLimiter(10, 200*time.Millisecond),
		JapaneseIndex:   NewLimiter(3, 800*time.Millisecond),
		Marketplace:     NewLimiter(3, 1*time.Second),
	}
}
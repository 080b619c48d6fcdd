package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing REST requests and tracks the exchange's
// reported weight usage. Pacing happens before the request; the used
// weight comes back on the X-MBX-USED-WEIGHT-1M response header.
type RateLimiter struct {
	pacer *rate.Limiter

	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	mu            sync.RWMutex
}

// NewRateLimiter creates a rate limiter.
// limit: maximum weight per window (1200 for spot)
// resetInterval: the window length (1 minute for Binance)
func NewRateLimiter(limit int, resetInterval time.Duration) *RateLimiter {
	// Pace to ~90% of the advertised budget, spread across the window.
	perSecond := float64(limit) * 0.9 / resetInterval.Seconds()
	return &RateLimiter{
		pacer:         rate.NewLimiter(rate.Limit(perSecond), limit/10),
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// WaitN blocks until the limiter allows a request of the given weight.
func (rl *RateLimiter) WaitN(ctx context.Context, weight int) error {
	return rl.pacer.WaitN(ctx, weight)
}

// UpdateFromHeader records the used weight reported by the exchange.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}

	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}

	rl.usedWeight = weight

	percentage := float64(rl.usedWeight) / float64(rl.limit) * 100
	if percentage >= 95 {
		log.Printf("⚠️ rate limit critical: %d/%d (%.1f%%) - approaching ban threshold", rl.usedWeight, rl.limit, percentage)
	} else if percentage >= 80 {
		log.Printf("⚠️ rate limit warning: %d/%d (%.1f%%)", rl.usedWeight, rl.limit, percentage)
	}
}

// GetUsage returns the current usage within the window.
func (rl *RateLimiter) GetUsage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}

	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay reports whether callers should back off non-essential requests.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.GetUsage()
	return pct >= 90
}

package upstream

import (
	"sync"
	"time"
)

// AcquireResult represents the result of a non-blocking TryAcquire attempt
type AcquireResult struct {
	Acquired  bool          // Whether the slot was successfully acquired
	WaitTime  time.Duration // Suggested wait time if not acquired
	Reason    string        // Explanation for denial (empty if acquired)
	Remaining int           // Remaining request budget in the current window
}

// RateLimiter enforces a per-minute request budget for one feed. The
// upstream's own 429 responses feed back through RecordRateLimited, which
// holds all requests until the reported recovery time.
type RateLimiter struct {
	mu sync.Mutex

	maxPerMinute int
	count        int
	resetAt      time.Time

	banUntil time.Time
}

// NewRateLimiter creates a limiter with the given per-minute budget
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{
		maxPerMinute: maxPerMinute,
		resetAt:      time.Now().Add(time.Minute),
	}
}

// TryAcquire atomically checks and records one request slot
func (r *RateLimiter) TryAcquire() AcquireResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if now.Before(r.banUntil) {
		return AcquireResult{
			Acquired: false,
			WaitTime: r.banUntil.Sub(now),
			Reason:   "upstream rate limit ban active",
		}
	}

	if now.After(r.resetAt) {
		r.count = 0
		r.resetAt = now.Add(time.Minute)
	}

	if r.count >= r.maxPerMinute {
		return AcquireResult{
			Acquired: false,
			WaitTime: r.resetAt.Sub(now),
			Reason:   "minute budget exhausted",
		}
	}

	r.count++
	return AcquireResult{Acquired: true, Remaining: r.maxPerMinute - r.count}
}

// RecordRateLimited registers an upstream 429. retryAfter of zero applies a
// conservative 30 s hold.
func (r *RateLimiter) RecordRateLimited(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	until := time.Now().Add(retryAfter)
	if until.After(r.banUntil) {
		r.banUntil = until
	}
}

// Usage returns the consumed share of the current window (0..1)
func (r *RateLimiter) Usage() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxPerMinute == 0 {
		return 0
	}
	return float64(r.count) / float64(r.maxPerMinute)
}

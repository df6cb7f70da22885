package relay

import (
	"sync"
	"time"
)

// RateLimiter caps message sends per user with a fixed one-minute window.
// Joins, leaves, typing, and reactions are not limited.
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	users map[string]*userWindow
}

type userWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit messages per user per
// minute. A non-positive limit disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit: limit,
		users: make(map[string]*userWindow),
	}
}

// Allow reports whether userID may send another message in the current
// window, counting it when allowed.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.users[userID]
	if !exists || now.Sub(window.windowStart) >= time.Minute {
		rl.users[userID] = &userWindow{count: 1, windowStart: now}
		return true
	}

	if window.count >= rl.limit {
		return false
	}

	window.count++
	return true
}

// Cleanup drops users whose window is long expired. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.users {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.users, userID)
		}
	}
}

package feed

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between accepted commands per chat.
const DefaultCooldown = 2 * time.Second

// RateLimiter records the last accepted command time per chat and rejects
// commands arriving within the cooldown window.
//
// This is deliberately not a token bucket: the observable contract is
// "last accepted timestamp plus cooldown", with the stored timestamp
// advancing only on accepted commands. Rejections leave it untouched so a
// chat cannot extend its own penalty by hammering the bot.
//
// State is memory-only and unbounded; it is lost on restart.
type RateLimiter struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[int64]time.Time

	now func() time.Time
}

func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimiter{
		cooldown: cooldown,
		last:     make(map[int64]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether a command from chatID may proceed. On accept it
// records the timestamp; on reject it returns the remaining wait.
// Check-and-update is atomic under the mutex.
func (r *RateLimiter) Allow(chatID int64) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, ok := r.last[chatID]; ok {
		if elapsed := now.Sub(last); elapsed < r.cooldown {
			return false, r.cooldown - elapsed
		}
	}
	r.last[chatID] = now
	return true, 0
}

// WaitSeconds converts a remaining wait into the whole seconds a user is
// told to wait, rounded up so "1.2s left" reads as 2 seconds.
func WaitSeconds(wait time.Duration) int {
	if wait <= 0 {
		return 0
	}
	s := int(wait / time.Second)
	if wait%time.Second != 0 {
		s++
	}
	return s
}

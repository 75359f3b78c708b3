package bot

import (
	"sync"
	"time"
)

// LoginThrottle bounds credential attempts per chat key with a fixed
// window, closing the unlimited-guessing hole the web login path
// already guards against. Timestamps outside the window are pruned on
// each check.
type LoginThrottle struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewLoginThrottle(max int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{
		max:      max,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records one attempt for key and reports whether it is within
// the window's budget.
func (t *LoginThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	kept := t.attempts[key][:0]
	for _, ts := range t.attempts[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= t.max {
		t.attempts[key] = kept
		return false
	}
	t.attempts[key] = append(kept, now)
	return true
}

// Reset clears the budget for key, called after a successful login.
func (t *LoginThrottle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}

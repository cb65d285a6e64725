// ABOUTME: Per-platform token buckets that space out host settings changes.

package quality

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle holds one limiter per platform. A zero interval disables it.
type throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newThrottle(interval time.Duration, burst int) *throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &throttle{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    max(burst, 1),
	}
}

// allow consumes a token for platform at now.
func (t *throttle) allow(platform string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[platform]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[platform] = l
	}
	return l.AllowN(now, 1)
}

func (t *throttle) forget(platform string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, platform)
}

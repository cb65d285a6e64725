// ABOUTME: Thread-safe TTL set with a size cap and insertion-order eviction.
// ABOUTME: Clock is injectable so callers with a simulated clock expire keys consistently.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Options configures a Cache.
type Options struct {
	// TTL is how long a marked key is remembered.
	TTL time.Duration
	// MaxSize caps the number of keys; the oldest is evicted first.
	MaxSize int
	// SweepInterval enables a background sweep of expired keys when positive.
	SweepInterval time.Duration
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Cache is a TTL-bounded set of string keys.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a cache. A background goroutine runs only when
// opts.SweepInterval is positive; Close stops it.
func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10000
	}
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		done:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	}
	return c
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Mark records key as seen now, refreshing it if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// CheckAndMark marks key and reports whether it was already live.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Len returns the number of stored keys, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Sweep removes every expired key and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, e := range c.seen {
		if now.Sub(e.markedAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.seen[key]
	return ok && c.now().Sub(e.markedAt) < c.ttl
}

func (c *Cache) markLocked(key string) {
	now := c.now()
	if e, ok := c.seen[key]; ok {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}
	c.seen[key] = &entry{markedAt: now, element: c.order.PushBack(key)}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

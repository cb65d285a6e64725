// ABOUTME: In-process message bus routing unicast and broadcast envelopes by agent id.
// ABOUTME: Retains a bounded FIFO history; unknown recipients are dropped without error.

package bus

import (
	"log/slog"
	"sync"

	"github.com/2389/stream-agents/internal/agent"
)

// DefaultHistoryLimit is the number of messages retained in history.
const DefaultHistoryLimit = 1000

// Stats summarises bus activity since construction.
type Stats struct {
	Published   int `json:"published"`
	Delivered   int `json:"delivered"`
	Dropped     int `json:"dropped"`
	HistoryLen  int `json:"history_len"`
	Subscribers int `json:"subscribers"`
}

// Bus is a named-subscriber registry. Delivery is synchronous: Publish
// returns after every recipient's ReceiveMessage has returned.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]agent.Receiver

	histMu  sync.Mutex
	history *ring
	stats   Stats

	logger *slog.Logger
}

// New creates a bus retaining up to historyLimit messages. A non-positive
// limit uses DefaultHistoryLimit. Pass nil logger for default.
func New(historyLimit int, logger *slog.Logger) *Bus {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]agent.Receiver),
		history:     newRing(historyLimit),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers r under id. Re-subscribing an id replaces the prior receiver.
func (b *Bus) Subscribe(id string, r agent.Receiver) {
	b.mu.Lock()
	_, replaced := b.subscribers[id]
	b.subscribers[id] = r
	b.mu.Unlock()

	b.logger.Debug("subscriber registered", "id", id, "replaced", replaced)
}

// Unsubscribe removes the receiver registered under id, if any.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Subscribed reports whether id has a registered receiver.
func (b *Bus) Subscribed(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subscribers[id]
	return ok
}

// Publish records msg in history and delivers it. A registered recipient
// gets it once; "all" reaches every subscriber except the sender; anything
// else is dropped silently.
func (b *Bus) Publish(msg agent.Message) {
	// Copy targets under read lock so receivers may publish re-entrantly.
	b.mu.RLock()
	var targets []agent.Receiver
	if r, ok := b.subscribers[msg.Recipient]; ok {
		targets = append(targets, r)
	} else if msg.IsBroadcast() {
		targets = make([]agent.Receiver, 0, len(b.subscribers))
		for id, r := range b.subscribers {
			if id == msg.Sender {
				continue
			}
			targets = append(targets, r)
		}
	}
	b.mu.RUnlock()

	b.histMu.Lock()
	b.history.push(msg)
	b.stats.Published++
	if len(targets) == 0 && !msg.IsBroadcast() {
		b.stats.Dropped++
	}
	b.stats.Delivered += len(targets)
	b.histMu.Unlock()

	if len(targets) == 0 && !msg.IsBroadcast() {
		b.logger.Debug("no subscriber for recipient, message dropped",
			"recipient", msg.Recipient,
			"sender", msg.Sender,
			"type", msg.Type,
		)
		return
	}

	for _, r := range targets {
		r.ReceiveMessage(msg)
	}
}

// History returns the retained messages, oldest first.
func (b *Bus) History() []agent.Message {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	return b.history.items()
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subs := len(b.subscribers)
	b.mu.RUnlock()

	b.histMu.Lock()
	defer b.histMu.Unlock()
	s := b.stats
	s.HistoryLen = b.history.len()
	s.Subscribers = subs
	return s
}

// Reset drops all subscribers and history.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subscribers = make(map[string]agent.Receiver)
	b.mu.Unlock()

	b.histMu.Lock()
	b.history = newRing(b.history.cap())
	b.stats = Stats{}
	b.histMu.Unlock()
}

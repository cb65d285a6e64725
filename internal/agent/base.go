// ABOUTME: Lifecycle shell shared by every agent: start/stop, mailbox, recommendation store.
// ABOUTME: Runs one loop goroutine per started agent that drains, processes, then sleeps.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultUpdateInterval is the loop period when none is configured.
	DefaultUpdateInterval = 60 * time.Second
	// DefaultRecoveryPause is the sleep after an iteration that failed.
	DefaultRecoveryPause = 5 * time.Second
	// DefaultRecentWindow is the age window used when callers pass no window.
	DefaultRecentWindow = 300 * time.Second
)

// Behavior is the capability set every concrete agent supplies.
// Base calls these hooks; empty implementations are legal.
type Behavior interface {
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Process(ctx context.Context) error
	HandleMessage(ctx context.Context, msg Message) error
}

// Params configures a Base.
type Params struct {
	ID             string
	Kind           string
	Enabled        bool
	UpdateInterval time.Duration
	RecoveryPause  time.Duration
	Bus            Publisher
	Logger         *slog.Logger
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Status is a point-in-time snapshot of an agent.
type Status struct {
	ID                    string `json:"name"`
	Kind                  string `json:"kind"`
	Enabled               bool   `json:"enabled"`
	Running               bool   `json:"running"`
	TotalRecommendations  int    `json:"recommendations_count"`
	RecentRecommendations int    `json:"recent_recommendations"`
	UpdateIntervalSeconds int    `json:"update_interval"`
	MailboxDepth          int    `json:"mailbox_depth"`
}

// Base implements the agent lifecycle. Concrete agents embed *Base and pass
// themselves as the Behavior.
type Base struct {
	id            string
	kind          string
	enabled       bool
	interval      time.Duration
	recoveryPause time.Duration
	behavior      Behavior
	bus           Publisher
	logger        *slog.Logger
	now           func() time.Time

	running atomic.Bool
	lifeMu  sync.Mutex // serializes Start/Stop
	stop    chan struct{}
	done    chan struct{}

	mailMu  sync.Mutex
	mailbox []Message

	recMu sync.RWMutex
	recs  []Recommendation
}

// NewBase creates a stopped agent shell around behavior.
func NewBase(p Params, behavior Behavior) *Base {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.UpdateInterval <= 0 {
		p.UpdateInterval = DefaultUpdateInterval
	}
	if p.RecoveryPause <= 0 {
		p.RecoveryPause = DefaultRecoveryPause
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Kind == "" {
		p.Kind = p.ID
	}

	done := make(chan struct{})
	close(done)

	b := &Base{
		id:            p.ID,
		kind:          p.Kind,
		enabled:       p.Enabled,
		interval:      p.UpdateInterval,
		recoveryPause: p.RecoveryPause,
		behavior:      behavior,
		bus:           p.Bus,
		logger:        p.Logger.With("component", "agent", "agent_id", p.ID),
		now:           p.Now,
		done:          done,
	}
	b.logger.Info("agent created", "kind", p.Kind, "enabled", p.Enabled)
	return b
}

// ID returns the agent's bus id.
func (b *Base) ID() string { return b.id }

// Kind returns the agent kind name.
func (b *Base) Kind() string { return b.kind }

// Enabled reports whether the agent may run. Fixed at construction.
func (b *Base) Enabled() bool { return b.enabled }

// Running reports whether the agent is between Start and Stop.
func (b *Base) Running() bool { return b.running.Load() }

// UpdateInterval returns the loop period.
func (b *Base) UpdateInterval() time.Duration { return b.interval }

// Logger returns the agent-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Now returns the agent clock's current time.
func (b *Base) Now() time.Time { return b.now() }

// Done returns a channel closed once the loop goroutine has exited.
// For an agent that was never started the channel is already closed.
func (b *Base) Done() <-chan struct{} {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.done
}

// Start launches the loop and runs the Initialize hook. Disabled agents
// stay stopped; starting a running agent does nothing.
func (b *Base) Start(ctx context.Context) error {
	if !b.enabled {
		b.logger.Info("agent disabled, skipping start")
		return nil
	}

	b.lifeMu.Lock()
	if b.running.Load() {
		b.lifeMu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.running.Store(true)
	go b.loop(context.WithoutCancel(ctx), ready, b.stop, b.done)
	b.lifeMu.Unlock()

	b.logger.Info("agent starting", "update_interval", b.interval)

	// The first iteration waits for Initialize so hooks never race it.
	defer close(ready)
	if err := safeCall(func() error { return b.behavior.Initialize(ctx) }); err != nil {
		return fmt.Errorf("initializing agent %s: %w", b.id, err)
	}
	return nil
}

// Stop signals the loop to exit at its next iteration boundary and runs the
// Cleanup hook. An in-flight hook is never interrupted. Stopping a stopped
// agent is a no-op.
func (b *Base) Stop(ctx context.Context) error {
	b.lifeMu.Lock()
	if !b.running.Swap(false) {
		b.lifeMu.Unlock()
		return nil
	}
	close(b.stop)
	b.lifeMu.Unlock()

	b.logger.Info("agent stopping")

	if err := safeCall(func() error { return b.behavior.Cleanup(ctx) }); err != nil {
		return fmt.Errorf("cleaning up agent %s: %w", b.id, err)
	}
	return nil
}

// loop is the agent's only goroutine. stop is checked at every iteration
// boundary and wakes the interval sleep early.
func (b *Base) loop(parent context.Context, ready, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	select {
	case <-ready:
	case <-stop:
		return
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		pause := b.interval
		if err := b.iterate(ctx); err != nil {
			b.logger.Error("agent iteration failed", "error", err, "retry_in", b.recoveryPause)
			pause = b.recoveryPause
		}

		timer := time.NewTimer(pause)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// iterate drains the mailbox and then runs Process once.
func (b *Base) iterate(ctx context.Context) error {
	drainErr := b.drainMailbox(ctx)
	processErr := safeCall(func() error { return b.behavior.Process(ctx) })
	if processErr != nil {
		processErr = fmt.Errorf("process: %w", processErr)
	}
	return errors.Join(drainErr, processErr)
}

// drainMailbox dispatches queued messages in FIFO order until the mailbox is
// empty, including messages that arrive while draining.
func (b *Base) drainMailbox(ctx context.Context) error {
	var errs []error
	for {
		batch := b.takeMailbox()
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		for _, msg := range batch {
			if err := safeCall(func() error { return b.behavior.HandleMessage(ctx, msg) }); err != nil {
				b.logger.Warn("message handling failed",
					"type", msg.Type,
					"sender", msg.Sender,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("handling %s from %s: %w", msg.Type, msg.Sender, err))
			}
		}
	}
}

func (b *Base) takeMailbox() []Message {
	b.mailMu.Lock()
	defer b.mailMu.Unlock()
	batch := b.mailbox
	b.mailbox = nil
	return batch
}

// ReceiveMessage enqueues msg. It never blocks and never drops.
func (b *Base) ReceiveMessage(msg Message) {
	b.mailMu.Lock()
	b.mailbox = append(b.mailbox, msg)
	b.mailMu.Unlock()
}

// MailboxDepth returns the number of queued, unhandled messages.
func (b *Base) MailboxDepth() int {
	b.mailMu.Lock()
	defer b.mailMu.Unlock()
	return len(b.mailbox)
}

// SendMessage builds a message from this agent and hands it to the bus.
// Delivery is not acknowledged.
func (b *Base) SendMessage(recipient, msgType string, payload map[string]any, priority Priority) Message {
	msg := NewMessage(b.id, recipient, msgType, payload, priority)
	if b.bus == nil {
		b.logger.Debug("no bus attached, message not sent", "recipient", recipient, "type", msgType)
		return msg
	}
	b.logger.Debug("sending message", "recipient", recipient, "type", msgType, "priority", priority.String())
	b.bus.Publish(msg)
	return msg
}

// CreateRecommendation appends a recommendation to the agent's store.
// A ttl of zero or less means the recommendation never expires from age.
func (b *Base) CreateRecommendation(kind string, confidence float64, payload map[string]any, ttl time.Duration) Recommendation {
	rec := newRecommendation(b.id, kind, confidence, payload, b.now(), ttl)

	b.recMu.Lock()
	b.recs = append(b.recs, rec)
	b.recMu.Unlock()

	b.logger.Info("created recommendation",
		"kind", kind,
		"confidence", fmt.Sprintf("%.2f", rec.Confidence),
		"recommendation_id", rec.ID,
	)
	return rec
}

// RecentRecommendations returns recommendations created within maxAge that
// have not expired. A non-positive maxAge uses DefaultRecentWindow.
func (b *Base) RecentRecommendations(maxAge time.Duration) []Recommendation {
	if maxAge <= 0 {
		maxAge = DefaultRecentWindow
	}
	now := b.now()
	cutoff := now.Add(-maxAge)

	b.recMu.RLock()
	defer b.recMu.RUnlock()

	out := make([]Recommendation, 0, len(b.recs))
	for _, rec := range b.recs {
		if rec.CreatedAt.Before(cutoff) || rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// TotalRecommendations returns the size of the append-only store.
func (b *Base) TotalRecommendations() int {
	b.recMu.RLock()
	defer b.recMu.RUnlock()
	return len(b.recs)
}

// AllRecommendations returns a copy of the full store.
func (b *Base) AllRecommendations() []Recommendation {
	b.recMu.RLock()
	defer b.recMu.RUnlock()
	return slices.Clone(b.recs)
}

// Status returns a snapshot of the agent.
func (b *Base) Status() Status {
	return Status{
		ID:                    b.id,
		Kind:                  b.kind,
		Enabled:               b.enabled,
		Running:               b.running.Load(),
		TotalRecommendations:  b.TotalRecommendations(),
		RecentRecommendations: len(b.RecentRecommendations(DefaultRecentWindow)),
		UpdateIntervalSeconds: int(b.interval / time.Second),
		MailboxDepth:          b.MailboxDepth(),
	}
}

// safeCall runs fn and converts a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// ABOUTME: Coordinator lifecycle: agent construction, bus wiring, the coordination loop and shutdown.
// ABOUTME: Also exposes the read-only queries the host and HTTP API use.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/bus"
	"github.com/2389/stream-agents/internal/ledger"
)

const (
	// DefaultInterval is the coordination loop period.
	DefaultInterval = 60 * time.Second
	// DefaultAutoApplyThreshold is the confidence an auto_apply entry must exceed.
	DefaultAutoApplyThreshold = 0.8
)

var (
	// ErrUnknownAgentKind indicates a configured agent kind has no factory.
	ErrUnknownAgentKind = errors.New("unknown agent kind")
	// ErrDuplicateAgent indicates two configured agents share an id.
	ErrDuplicateAgent = errors.New("duplicate agent id")
	// ErrAlreadyInitialized indicates Initialize was called more than once.
	ErrAlreadyInitialized = errors.New("coordinator already initialized")
	// ErrNotRunning indicates an operation that needs a running coordinator.
	ErrNotRunning = errors.New("coordinator not running")
)

// State is the coordinator lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Member is what the coordinator needs from an agent. *agent.Base and every
// type embedding it satisfy it.
type Member interface {
	agent.Receiver
	ID() string
	Kind() string
	Enabled() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RecentRecommendations(maxAge time.Duration) []agent.Recommendation
	Status() agent.Status
	Done() <-chan struct{}
}

// AgentSpec describes one configured agent.
type AgentSpec struct {
	ID             string
	Kind           string
	Enabled        bool
	UpdateInterval time.Duration
	// Settings is the kind-specific tuning block, decoded by the agent.
	Settings map[string]any
}

// Deps are the shared collaborators handed to every Factory.
type Deps struct {
	Bus    agent.Publisher
	Logger *slog.Logger
	Now    func() time.Time
}

// Factory builds an agent of one kind.
type Factory func(spec AgentSpec, deps Deps) (Member, error)

// Config is the coordination section of the application config.
type Config struct {
	Enabled            bool
	Interval           time.Duration
	AutoApplyThreshold float64
	// CollectWindow is the age window passed to RecentRecommendations.
	CollectWindow time.Duration
	Agents        []AgentSpec
}

// Options carries collaborators and overrides. Zero values use defaults.
type Options struct {
	Factories map[string]Factory
	// Appliers override or extend the built-in apply handlers by kind.
	Appliers      map[string]ApplyFunc
	Bus           *bus.Bus
	Logger        *slog.Logger
	Now           func() time.Time
	RecoveryPause time.Duration
	AppliedLogMax int
}

// Coordinator supervises agents and runs the coordination loop.
type Coordinator struct {
	cfg           Config
	factories     map[string]Factory
	appliers      map[string]ApplyFunc
	bus           *bus.Bus
	ledger        *ledger.Ledger
	logger        *slog.Logger
	rootLogger    *slog.Logger
	now           func() time.Time
	recoveryPause time.Duration

	mu     sync.RWMutex
	state  State
	agents []Member
	byID   map[string]Member
	stop   chan struct{}
	done   chan struct{}

	// cycleMu serializes RunCycle and manual actions.
	cycleMu sync.Mutex
}

// New creates an uninitialized coordinator.
func New(cfg Config, opts Options) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AutoApplyThreshold <= 0 {
		cfg.AutoApplyThreshold = DefaultAutoApplyThreshold
	}
	if cfg.CollectWindow <= 0 {
		cfg.CollectWindow = agent.DefaultRecentWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecoveryPause <= 0 {
		opts.RecoveryPause = agent.DefaultRecoveryPause
	}
	if opts.Bus == nil {
		opts.Bus = bus.New(bus.DefaultHistoryLimit, opts.Logger)
	}

	c := &Coordinator{
		cfg:       cfg,
		factories: opts.Factories,
		bus:       opts.Bus,
		ledger: ledger.New(ledger.Options{
			AppliedLogSize: opts.AppliedLogMax,
			SettledTTL:     2 * cfg.CollectWindow,
			Now:            opts.Now,
		}),
		logger:        opts.Logger.With("component", "coordinator"),
		rootLogger:    opts.Logger,
		now:           opts.Now,
		recoveryPause: opts.RecoveryPause,
		byID:          make(map[string]Member),
	}
	c.appliers = c.defaultAppliers()
	for kind, fn := range opts.Appliers {
		c.appliers[kind] = fn
	}

	c.logger.Info("coordinator created",
		"enabled", cfg.Enabled,
		"interval", cfg.Interval,
		"agents_configured", len(cfg.Agents),
	)
	return c
}

// Initialize builds and starts the configured agents and launches the
// coordination loop. A disabled coordinator logs and returns nil. Unknown
// agent kinds fail before anything is started.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.logger.Info("coordination disabled, skipping initialization")
		return nil
	}

	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.state = StateInitializing
	c.mu.Unlock()

	members, err := c.buildAgents()
	if err != nil {
		c.setState(StateUninitialized)
		return err
	}

	c.mu.Lock()
	for _, m := range members {
		c.agents = append(c.agents, m)
		c.byID[m.ID()] = m
	}
	c.mu.Unlock()

	for _, m := range members {
		c.bus.Subscribe(m.ID(), m)
	}
	c.bus.Subscribe(agent.CoordinatorID, c)

	for _, m := range members {
		if !m.Enabled() {
			c.logger.Info("agent disabled", "agent_id", m.ID(), "kind", m.Kind())
			continue
		}
		if err := m.Start(ctx); err != nil {
			// The agent loop is already running; it keeps going without init.
			c.logger.Error("agent initialization failed", "agent_id", m.ID(), "error", err)
			continue
		}
		c.logger.Info("started agent", "agent_id", m.ID(), "kind", m.Kind())
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.done = done
	c.state = StateRunning
	c.mu.Unlock()

	go c.runLoop(context.WithoutCancel(ctx), stop, done)

	c.logger.Info("coordinator started", "agent_count", len(members))
	return nil
}

func (c *Coordinator) buildAgents() ([]Member, error) {
	deps := Deps{Bus: c.bus, Logger: c.rootLogger, Now: c.now}
	seen := make(map[string]bool)

	members := make([]Member, 0, len(c.cfg.Agents))
	for _, spec := range c.cfg.Agents {
		if spec.ID == "" {
			spec.ID = spec.Kind
		}
		if spec.ID == agent.CoordinatorID || seen[spec.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, spec.ID)
		}
		seen[spec.ID] = true

		factory, ok := c.factories[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %q (agent %s)", ErrUnknownAgentKind, spec.Kind, spec.ID)
		}
		m, err := factory(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("building agent %s: %w", spec.ID, err)
		}
		members = append(members, m)
	}
	return members, nil
}

// runLoop runs one cycle per interval until stop is closed.
func (c *Coordinator) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case <-stop:
			return
		default:
		}

		pause := c.cfg.Interval
		if _, err := c.RunCycle(ctx); err != nil {
			c.logger.Error("coordination cycle failed", "error", err, "retry_in", c.recoveryPause)
			pause = c.recoveryPause
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

// Shutdown stops the loop and every agent, then waits for their goroutines
// until ctx is done. Stop errors are logged per agent and do not abort the
// shutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateShuttingDown, StateStopped:
		c.mu.Unlock()
		return nil
	case StateUninitialized:
		c.state = StateStopped
		c.mu.Unlock()
		c.ledger.Close()
		return nil
	}
	c.state = StateShuttingDown
	stop, done := c.stop, c.done
	members := append([]Member(nil), c.agents...)
	c.mu.Unlock()

	c.logger.Info("shutting down agents")
	if stop != nil {
		close(stop)
	}

	for _, m := range members {
		if err := m.Stop(ctx); err != nil {
			c.logger.Error("error stopping agent", "agent_id", m.ID(), "error", err)
			continue
		}
		c.logger.Info("stopped agent", "agent_id", m.ID())
	}

	waitErr := c.waitFor(ctx, done, members)

	c.bus.Unsubscribe(agent.CoordinatorID)
	c.ledger.Close()
	c.setState(StateStopped)

	if waitErr != nil {
		return fmt.Errorf("waiting for agents: %w", waitErr)
	}
	c.logger.Info("coordinator shutdown complete")
	return nil
}

func (c *Coordinator) waitFor(ctx context.Context, loopDone <-chan struct{}, members []Member) error {
	chans := make([]<-chan struct{}, 0, len(members)+1)
	if loopDone != nil {
		chans = append(chans, loopDone)
	}
	for _, m := range members {
		chans = append(chans, m.Done())
	}
	for _, ch := range chans {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Bus returns the message bus the agents are attached to.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// Agent returns the agent registered under id.
func (c *Coordinator) Agent(id string) (Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byID[id]
	return m, ok
}

// Agents returns the agents in configuration order.
func (c *Coordinator) Agents() []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Member(nil), c.agents...)
}

// Status is the coordinator-wide snapshot returned by AgentStatus.
type Status struct {
	Running    bool   `json:"coordinator_running"`
	Enabled    bool   `json:"enabled"`
	State      string `json:"state"`
	AgentCount int    `json:"agent_count"`
	ledger.Counts
	Agents map[string]agent.Status `json:"agents"`
	Bus    bus.Stats               `json:"bus"`
}

// AgentStatus returns coordinator state, ledger sizes and every agent's status.
func (c *Coordinator) AgentStatus() Status {
	members := c.Agents()
	state := c.State()

	st := Status{
		Running:    state == StateRunning,
		Enabled:    c.cfg.Enabled,
		State:      state.String(),
		AgentCount: len(members),
		Counts:     c.ledger.Counts(),
		Agents:     make(map[string]agent.Status, len(members)),
		Bus:        c.bus.Stats(),
	}
	for _, m := range members {
		st.Agents[m.ID()] = m.Status()
	}
	return st
}

// Recommendations returns the active pool, followed by the applied log
// (oldest first, marked "applied") when includeApplied is set.
func (c *Coordinator) Recommendations(includeApplied bool) []agent.View {
	active := c.ledger.Active()
	out := make([]agent.View, 0, len(active))
	for _, rec := range active {
		out = append(out, rec.View())
	}
	if includeApplied {
		for _, rec := range c.ledger.Applied() {
			v := rec.View()
			v.Status = "applied"
			out = append(out, v)
		}
	}
	return out
}

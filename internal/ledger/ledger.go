// ABOUTME: Active recommendation pool and bounded applied log shared by the coordinator.
// ABOUTME: Handles collection, expiry sweeps, per-kind conflict resolution and apply bookkeeping.

package ledger

import (
	"slices"
	"sync"
	"time"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/dedupe"
)

const (
	// DefaultAppliedLogSize is how many applied recommendations are kept for reporting.
	DefaultAppliedLogSize = 10
	// DefaultSettledTTL is how long applied or discarded ids are kept out of collection.
	DefaultSettledTTL = 10 * time.Minute
)

// Options configures a Ledger.
type Options struct {
	AppliedLogSize int
	// SettledTTL should cover the collection window so settled recommendations
	// age out of agent views before they are forgotten here.
	SettledTTL time.Duration
	Now        func() time.Time
}

// Counts summarises ledger sizes.
type Counts struct {
	Active       int `json:"active_recommendations"`
	Applied      int `json:"applied_recommendations"`
	AppliedTotal int `json:"applied_total"`
}

// Resolution records the outcome of one conflicting kind.
type Resolution struct {
	Kind   string
	Winner agent.Recommendation
	Losers []agent.Recommendation
}

// Ledger holds the active pool and applied log. All methods are safe for
// concurrent use; the coordinator loop is the only writer in steady state.
type Ledger struct {
	mu           sync.RWMutex
	active       []agent.Recommendation
	applied      []agent.Recommendation
	appliedTotal int
	appliedSize  int

	policies map[string]Better
	settled  *dedupe.Cache
	now      func() time.Time
}

// New creates an empty ledger with the built-in conflict policies.
func New(opts Options) *Ledger {
	if opts.AppliedLogSize <= 0 {
		opts.AppliedLogSize = DefaultAppliedLogSize
	}
	if opts.SettledTTL <= 0 {
		opts.SettledTTL = DefaultSettledTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		appliedSize: opts.AppliedLogSize,
		policies:    DefaultPolicies(),
		settled:     dedupe.New(dedupe.Options{TTL: opts.SettledTTL, Now: opts.Now}),
		now:         opts.Now,
	}
}

// SetPolicy overrides the conflict policy for kind.
func (l *Ledger) SetPolicy(kind string, better Better) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[kind] = better
}

// Collect appends recommendations not already in the pool and not recently
// settled. It returns the newly added ones in input order.
func (l *Ledger) Collect(recs []agent.Recommendation) []agent.Recommendation {
	l.mu.Lock()
	defer l.mu.Unlock()

	var added []agent.Recommendation
	for _, rec := range recs {
		if l.settled.Seen(rec.ID) || l.containsLocked(rec) {
			continue
		}
		l.active = append(l.active, rec)
		added = append(added, rec)
	}
	return added
}

// Sweep removes expired entries from the pool and returns them.
func (l *Ledger) Sweep() []agent.Recommendation {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var expired []agent.Recommendation
	l.active = slices.DeleteFunc(l.active, func(rec agent.Recommendation) bool {
		if rec.Expired(now) {
			expired = append(expired, rec)
			return true
		}
		return false
	})
	l.settled.Sweep()
	return expired
}

// ResolveConflicts keeps one winner per kind and drops the rest from the
// pool. Kinds are reported in order of first appearance.
func (l *Ledger) ResolveConflicts() []Resolution {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kinds []string
	groups := make(map[string][]int)
	for i, rec := range l.active {
		if _, ok := groups[rec.Kind]; !ok {
			kinds = append(kinds, rec.Kind)
		}
		groups[rec.Kind] = append(groups[rec.Kind], i)
	}

	var resolutions []Resolution
	drop := make(map[int]bool)
	for _, kind := range kinds {
		idx := groups[kind]
		if len(idx) < 2 {
			continue
		}
		better := l.policyLocked(kind)

		winner := idx[0]
		for _, i := range idx[1:] {
			if better(l.active[i], l.active[winner]) {
				winner = i
			}
		}

		res := Resolution{Kind: kind, Winner: l.active[winner]}
		for _, i := range idx {
			if i == winner {
				continue
			}
			drop[i] = true
			res.Losers = append(res.Losers, l.active[i])
			l.settled.Mark(l.active[i].ID)
		}
		resolutions = append(resolutions, res)
	}

	if len(drop) > 0 {
		kept := l.active[:0]
		for i, rec := range l.active {
			if !drop[i] {
				kept = append(kept, rec)
			}
		}
		clear(l.active[len(kept):])
		l.active = kept
	}
	return resolutions
}

// Eligible returns active entries flagged for auto-apply whose confidence
// exceeds threshold.
func (l *Ledger) Eligible(threshold float64) []agent.Recommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []agent.Recommendation
	for _, rec := range l.active {
		if rec.AutoApply() && rec.Confidence > threshold {
			out = append(out, rec)
		}
	}
	return out
}

// MarkApplied moves rec from the pool to the applied log in one step. It
// returns false if rec is no longer active.
func (l *Ledger) MarkApplied(rec agent.Recommendation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.IndexFunc(l.active, rec.Equal)
	if i < 0 {
		return false
	}
	l.active = slices.Delete(l.active, i, i+1)

	l.applied = append(l.applied, rec)
	if over := len(l.applied) - l.appliedSize; over > 0 {
		l.applied = slices.Delete(l.applied, 0, over)
	}
	l.appliedTotal++
	l.settled.Mark(rec.ID)
	return true
}

// Find returns the active recommendation with id.
func (l *Ledger) Find(id string) (agent.Recommendation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := slices.IndexFunc(l.active, func(rec agent.Recommendation) bool { return rec.ID == id })
	if i < 0 {
		return agent.Recommendation{}, false
	}
	return l.active[i], true
}

// Active returns a copy of the pool in insertion order.
func (l *Ledger) Active() []agent.Recommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.active)
}

// Applied returns a copy of the applied log, oldest first.
func (l *Ledger) Applied() []agent.Recommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.applied)
}

// Counts returns pool and log sizes.
func (l *Ledger) Counts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Counts{Active: len(l.active), Applied: len(l.applied), AppliedTotal: l.appliedTotal}
}

// Close releases the settled-id cache.
func (l *Ledger) Close() {
	l.settled.Close()
}

func (l *Ledger) containsLocked(rec agent.Recommendation) bool {
	return slices.ContainsFunc(l.active, rec.Equal)
}

func (l *Ledger) policyLocked(kind string) Better {
	if p, ok := l.policies[kind]; ok {
		return p
	}
	return HigherConfidence
}

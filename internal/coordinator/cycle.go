// ABOUTME: One coordination cycle: collect, resolve conflicts, auto-apply, broadcast status.
// ABOUTME: Each phase is panic-guarded; apply failures leave the recommendation active.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/2389/stream-agents/internal/agent"
)

// CycleReport summarises what one cycle, or one manual action, did.
type CycleReport struct {
	Collected int      `json:"collected"`
	Expired   int      `json:"expired"`
	Resolved  []string `json:"resolved,omitempty"`
	Discarded int      `json:"discarded"`
	Applied   []string `json:"applied,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Active    int      `json:"active_recommendations"`
}

// RunCycle runs the four coordination phases in order. It is safe to call
// concurrently with the loop; cycles are serialized. The returned error is
// non-nil only when a phase panicked or a collector failed.
func (c *Coordinator) RunCycle(ctx context.Context) (CycleReport, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	var report CycleReport
	var errs []error

	errs = append(errs, guard("collect", func() error { return c.collect(&report) }))
	errs = append(errs, guard("resolve", func() error { c.resolve(&report); return nil }))
	errs = append(errs, guard("apply", func() error { c.autoApply(ctx, &report); return nil }))
	errs = append(errs, guard("broadcast", func() error { c.broadcastStatus(); return nil }))

	report.Active = c.ledger.Counts().Active
	return report, errors.Join(errs...)
}

// collect pulls recent recommendations from every agent into the pool and
// sweeps expired entries.
func (c *Coordinator) collect(report *CycleReport) error {
	var recs []agent.Recommendation
	var errs []error
	for _, m := range c.Agents() {
		err := guard("collect "+m.ID(), func() error {
			recs = append(recs, m.RecentRecommendations(c.cfg.CollectWindow)...)
			return nil
		})
		if err != nil {
			c.logger.Error("error collecting recommendations", "agent_id", m.ID(), "error", err)
			errs = append(errs, err)
		}
	}

	for _, rec := range c.ledger.Collect(recs) {
		c.logger.Info("new recommendation",
			"agent_id", rec.ProducedBy,
			"kind", rec.Kind,
			"recommendation_id", rec.ID,
		)
		report.Collected++
	}

	for _, rec := range c.ledger.Sweep() {
		c.logger.Debug("recommendation expired", "kind", rec.Kind, "recommendation_id", rec.ID)
		report.Expired++
	}
	return errors.Join(errs...)
}

func (c *Coordinator) resolve(report *CycleReport) {
	for _, res := range c.ledger.ResolveConflicts() {
		c.logger.Info("resolved conflict",
			"kind", res.Kind,
			"chosen_agent", res.Winner.ProducedBy,
			"chosen_id", res.Winner.ID,
			"discarded", len(res.Losers),
		)
		report.Resolved = append(report.Resolved, res.Kind)
		report.Discarded += len(res.Losers)
	}
}

func (c *Coordinator) autoApply(ctx context.Context, report *CycleReport) {
	for _, rec := range c.ledger.Eligible(c.cfg.AutoApplyThreshold) {
		if err := c.applyOne(ctx, rec); err != nil {
			c.logger.Error("error applying recommendation",
				"kind", rec.Kind,
				"recommendation_id", rec.ID,
				"error", err,
			)
			report.Failed = append(report.Failed, rec.ID)
			continue
		}
		c.logger.Info("auto-applied recommendation", "kind", rec.Kind, "agent_id", rec.ProducedBy)
		report.Applied = append(report.Applied, rec.ID)
	}
}

// applyOne runs the kind's applier and moves rec to the applied log on success.
func (c *Coordinator) applyOne(ctx context.Context, rec agent.Recommendation) error {
	fn, ok := c.appliers[rec.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoApplier, rec.Kind)
	}
	if err := guard("apply "+rec.Kind, func() error { return fn(ctx, rec) }); err != nil {
		return err
	}
	if !c.ledger.MarkApplied(rec) {
		c.logger.Warn("applied recommendation no longer active", "recommendation_id", rec.ID)
	}
	return nil
}

func (c *Coordinator) broadcastStatus() {
	counts := c.ledger.Counts()
	c.publish(agent.Broadcast, "coordination_status", map[string]any{
		"active_recommendations":  counts.Active,
		"applied_recommendations": counts.Applied,
		"agent_count":             len(c.Agents()),
	}, agent.PriorityLow)
}

func (c *Coordinator) publish(recipient, msgType string, payload map[string]any, priority agent.Priority) {
	c.bus.Publish(agent.NewMessage(agent.CoordinatorID, recipient, msgType, payload, priority))
}

// guard runs fn and converts a panic into an error tagged with phase.
func guard(phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v\n%s", phase, r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}

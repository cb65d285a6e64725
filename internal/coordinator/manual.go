// ABOUTME: Operator-triggered coordination actions, run outside the loop's schedule.

package coordinator

import (
	"context"
	"errors"
	"fmt"
)

// Manual action names accepted by Manual.
const (
	ActionCollect = "collect_recommendations"
	ActionResolve = "resolve_conflicts"
	ActionApply   = "apply_recommendation"
	ActionCycle   = "run_cycle"
)

var (
	// ErrUnknownAction indicates an unsupported manual action name.
	ErrUnknownAction = errors.New("unknown coordination action")
	// ErrRecommendationNotFound indicates no active recommendation has the given id.
	ErrRecommendationNotFound = errors.New("recommendation not found")
)

// Manual runs one named coordination action. apply_recommendation takes
// the recommendation id in args["id"] and applies it regardless of its
// auto_apply flag or confidence.
func (c *Coordinator) Manual(ctx context.Context, action string, args map[string]any) (CycleReport, error) {
	if c.State() != StateRunning {
		return CycleReport{}, ErrNotRunning
	}
	c.logger.Info("manual coordination", "action", action)

	if action == ActionCycle {
		return c.RunCycle(ctx)
	}

	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	var report CycleReport
	var err error
	switch action {
	case ActionCollect:
		err = guard(action, func() error { return c.collect(&report) })
	case ActionResolve:
		err = guard(action, func() error { c.resolve(&report); return nil })
	case ActionApply:
		err = c.manualApply(ctx, args, &report)
	default:
		return CycleReport{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	report.Active = c.ledger.Counts().Active
	return report, err
}

func (c *Coordinator) manualApply(ctx context.Context, args map[string]any, report *CycleReport) error {
	id, _ := args["id"].(string)
	if id == "" {
		return fmt.Errorf("%w: id", ErrMissingField)
	}
	rec, ok := c.ledger.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecommendationNotFound, id)
	}
	if err := c.applyOne(ctx, rec); err != nil {
		report.Failed = append(report.Failed, id)
		return fmt.Errorf("applying %s: %w", id, err)
	}
	report.Applied = append(report.Applied, id)
	return nil
}

// ABOUTME: Built-in apply handlers per recommendation kind and the coordinator's inbound message handlers.
// ABOUTME: Applying means messaging the producing agent; the host-facing side effect happens there.

package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/stream-agents/internal/agent"
)

var (
	// ErrNoApplier indicates a recommendation kind has no apply handler.
	ErrNoApplier = errors.New("no applier for recommendation kind")
	// ErrMissingField indicates a recommendation payload lacks a required key.
	ErrMissingField = errors.New("recommendation payload missing field")
	// ErrNoRecipient indicates the producing agent is no longer on the bus.
	ErrNoRecipient = errors.New("recipient not subscribed")
)

// ApplyFunc carries out one recommendation. A non-nil error leaves the
// recommendation active for a later retry.
type ApplyFunc func(ctx context.Context, rec agent.Recommendation) error

func (c *Coordinator) defaultAppliers() map[string]ApplyFunc {
	return map[string]ApplyFunc{
		agent.KindQualityOptimization:  c.applyQualityOptimization,
		agent.KindPlaylistOptimization: c.applyPlaylistOptimization,
		agent.KindPeakHourContent:      c.applyContentStrategy,
	}
}

func (c *Coordinator) applyQualityOptimization(_ context.Context, rec agent.Recommendation) error {
	platform, _ := rec.Payload["platform"].(string)
	if platform == "" {
		return fmt.Errorf("%w: platform", ErrMissingField)
	}
	if err := c.requireSubscribed(rec.ProducedBy); err != nil {
		return err
	}
	c.logger.Info("applying quality optimizations",
		"platform", platform,
		"changes", payloadLen(rec.Payload["optimizations"]),
	)
	c.publish(rec.ProducedBy, "apply_optimizations", rec.Payload, agent.PriorityHigh)
	return nil
}

func (c *Coordinator) applyPlaylistOptimization(_ context.Context, rec agent.Recommendation) error {
	n := payloadLen(rec.Payload["optimized_order"])
	if n == 0 {
		c.logger.Debug("playlist optimization has no order, nothing to apply", "recommendation_id", rec.ID)
		return nil
	}
	if err := c.requireSubscribed(rec.ProducedBy); err != nil {
		return err
	}
	c.logger.Info("applying playlist optimization", "video_count", n)
	c.publish(rec.ProducedBy, "playlist_updated", map[string]any{
		"status":      "applied",
		"video_count": n,
	}, agent.PriorityMedium)
	return nil
}

func (c *Coordinator) applyContentStrategy(_ context.Context, rec agent.Recommendation) error {
	if err := c.requireSubscribed(rec.ProducedBy); err != nil {
		return err
	}
	c.logger.Info("applying content strategy", "strategy", rec.Payload["strategy"])
	c.publish(rec.ProducedBy, "strategy_update", rec.Payload, agent.PriorityMedium)
	return nil
}

func (c *Coordinator) requireSubscribed(id string) error {
	if !c.bus.Subscribed(id) {
		return fmt.Errorf("%w: %s", ErrNoRecipient, id)
	}
	return nil
}

// payloadLen returns the length of a list-valued payload entry.
func payloadLen(v any) int {
	switch list := v.(type) {
	case []any:
		return len(list)
	case []string:
		return len(list)
	case []map[string]any:
		return len(list)
	default:
		return 0
	}
}

// ReceiveMessage handles messages addressed to "coordinator". It runs on the
// publisher's goroutine and never blocks on agent work.
func (c *Coordinator) ReceiveMessage(msg agent.Message) {
	err := guard("message "+msg.Type, func() error {
		switch msg.Type {
		case "quality_optimization_needed":
			return c.handleQualityOptimizationNeeded(msg)
		case "content_recommendation":
			rec, _ := msg.Payload["recommendation"].(map[string]any)
			c.logger.Info("received content recommendation", "sender", msg.Sender, "type", rec["type"])
		case "agent_status_update":
			c.logger.Info("agent status update", "agent_id", msg.Sender, "status", msg.Payload["status"])
		case "settings_failed":
			c.logger.Warn("agent failed to apply settings",
				"agent_id", msg.Sender,
				"platform", msg.Payload["platform"],
				"error", msg.Payload["error"],
			)
		case "quality_trend_alert":
			c.logger.Warn("quality trend alert", "agent_id", msg.Sender, "decline", msg.Payload["decline"])
		default:
			c.logger.Info("received message", "sender", msg.Sender, "type", msg.Type)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("error handling message", "sender", msg.Sender, "type", msg.Type, "error", err)
	}
}

// handleQualityOptimizationNeeded applies high-severity quality issues
// immediately instead of waiting for the next cycle.
func (c *Coordinator) handleQualityOptimizationNeeded(msg agent.Message) error {
	data, _ := msg.Payload["recommendation"].(map[string]any)
	label, _ := data[agent.PayloadSeverity].(string)
	if label == "" {
		label = agent.SeverityMedium.String()
	}
	c.logger.Info("received quality optimization request", "sender", msg.Sender, "severity", label)

	if agent.ParseSeverity(label) != agent.SeverityHigh {
		return nil
	}
	platform, _ := data["platform"].(string)
	if platform == "" {
		return fmt.Errorf("%w: platform", ErrMissingField)
	}
	c.logger.Warn("applying high severity quality optimization immediately", "platform", platform)
	c.publish(msg.Sender, "apply_optimizations", data, agent.PriorityHigh)
	return nil
}

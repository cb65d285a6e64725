// ABOUTME: Stream metrics, issue detection against fixed thresholds, and the optimizations that relieve them.
// ABOUTME: Pure functions; the agent feeds them samples and turns their output into recommendations.

package quality

import (
	"fmt"
	"time"

	"github.com/2389/stream-agents/internal/agent"
)

// Metrics is one sample of a platform's stream health.
type Metrics struct {
	BitrateKbps   float64   `json:"bitrate"`
	FPS           float64   `json:"fps"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	DroppedFrames int       `json:"dropped_frames"`
	LatencyMS     float64   `json:"network_latency"`
	BufferHealth  float64   `json:"buffer_health"`
	CPUPercent    float64   `json:"cpu_usage"`
	MemoryPercent float64   `json:"memory_usage"`
	SampledAt     time.Time `json:"timestamp"`
}

// StreamSettings are the encoder settings the host applies per platform.
type StreamSettings struct {
	BitrateKbps   int    `yaml:"bitrate" json:"bitrate"`
	Width         int    `yaml:"width" json:"width"`
	Height        int    `yaml:"height" json:"height"`
	FPS           int    `yaml:"fps" json:"fps"`
	Encoder       string `yaml:"encoder" json:"encoder"`
	EncoderPreset string `yaml:"encoder_preset,omitempty" json:"encoder_preset,omitempty"`
}

func (s StreamSettings) payload() map[string]any {
	out := map[string]any{
		"bitrate": s.BitrateKbps,
		"width":   s.Width,
		"height":  s.Height,
		"fps":     s.FPS,
		"encoder": s.Encoder,
	}
	if s.EncoderPreset != "" {
		out["encoder_preset"] = s.EncoderPreset
	}
	return out
}

// Issue types.
const (
	IssueDroppedFrames = "dropped_frames"
	IssueLatency       = "network_latency"
	IssueBufferHealth  = "buffer_health"
	IssueCPU           = "cpu_usage"
)

// Issue is one threshold breach.
type Issue struct {
	Type      string
	Severity  agent.Severity
	Value     float64
	Threshold float64
}

func (i Issue) payload() map[string]any {
	return map[string]any{
		"type":      i.Type,
		"severity":  i.Severity.String(),
		"value":     i.Value,
		"threshold": i.Threshold,
		"message":   fmt.Sprintf("%s at %.2f (threshold %.2f)", i.Type, i.Value, i.Threshold),
	}
}

// above grades a breach that has already passed its medium threshold.
func above(v, high float64) agent.Severity {
	if v > high {
		return agent.SeverityHigh
	}
	return agent.SeverityMedium
}

// DetectIssues compares m against the fixed thresholds.
func DetectIssues(m Metrics) []Issue {
	var issues []Issue
	if v := float64(m.DroppedFrames); v > 200 {
		issues = append(issues, Issue{IssueDroppedFrames, above(v, 500), v, 200})
	}
	if m.LatencyMS > 500 {
		issues = append(issues, Issue{IssueLatency, above(m.LatencyMS, 1000), m.LatencyMS, 500})
	}
	if m.BufferHealth < 0.5 {
		sev := agent.SeverityMedium
		if m.BufferHealth < 0.3 {
			sev = agent.SeverityHigh
		}
		issues = append(issues, Issue{IssueBufferHealth, sev, m.BufferHealth, 0.5})
	}
	if m.CPUPercent > 80 {
		issues = append(issues, Issue{IssueCPU, above(m.CPUPercent, 90), m.CPUPercent, 80})
	}
	return issues
}

// OverallSeverity is the most severe issue's severity.
func OverallSeverity(issues []Issue) agent.Severity {
	sevs := make([]agent.Severity, len(issues))
	for i, is := range issues {
		sevs[i] = is.Severity
	}
	return agent.MaxSeverity(sevs...)
}

// Optimization actions.
const (
	ActionReduceBitrate    = "reduce_bitrate"
	ActionReduceResolution = "reduce_resolution"
	ActionReduceFPS        = "reduce_fps"
	ActionOptimizeEncoder  = "optimize_encoder"
)

// Optimization is one settings change.
type Optimization struct {
	Action       string `yaml:"action"`
	Percentage   int    `yaml:"percentage,omitempty"`
	TargetWidth  int    `yaml:"target_width,omitempty"`
	TargetHeight int    `yaml:"target_height,omitempty"`
	TargetFPS    int    `yaml:"target_fps,omitempty"`
	Preset       string `yaml:"preset,omitempty"`
	Reason       string `yaml:"reason,omitempty"`
}

func (o Optimization) payload() map[string]any {
	out := map[string]any{"action": o.Action}
	if o.Percentage != 0 {
		out["percentage"] = o.Percentage
	}
	if o.TargetWidth != 0 {
		out["target_width"] = o.TargetWidth
		out["target_height"] = o.TargetHeight
	}
	if o.TargetFPS != 0 {
		out["target_fps"] = o.TargetFPS
	}
	if o.Preset != "" {
		out["preset"] = o.Preset
	}
	if o.Reason != "" {
		out["reason"] = o.Reason
	}
	return out
}

func optimizationsPayload(opts []Optimization) []any {
	out := make([]any, len(opts))
	for i, o := range opts {
		out[i] = o.payload()
	}
	return out
}

// Plan maps issues to the optimizations that relieve them.
func Plan(issues []Issue) []Optimization {
	var opts []Optimization
	for _, is := range issues {
		high := is.Severity == agent.SeverityHigh
		switch is.Type {
		case IssueDroppedFrames:
			opts = append(opts, Optimization{Action: ActionReduceBitrate, Percentage: pick(high, 15, 10), Reason: "reduce encoding load to prevent frame drops"})
		case IssueLatency:
			opts = append(opts, Optimization{Action: ActionReduceBitrate, Percentage: pick(high, 20, 15), Reason: "reduce bandwidth usage due to network issues"})
			if high {
				opts = append(opts, Optimization{Action: ActionReduceResolution, TargetWidth: 1280, TargetHeight: 720, Reason: "severe network issues require resolution reduction"})
			}
		case IssueBufferHealth:
			opts = append(opts,
				Optimization{Action: ActionReduceBitrate, Percentage: 10, Reason: "improve buffer stability"},
				Optimization{Action: ActionOptimizeEncoder, Preset: "faster", Reason: "reduce encoding latency"},
			)
		case IssueCPU:
			opts = append(opts, Optimization{Action: ActionOptimizeEncoder, Preset: "veryfast", Reason: "reduce cpu load"})
			if high {
				opts = append(opts, Optimization{Action: ActionReduceFPS, TargetFPS: 24, Reason: "severe cpu load requires fps reduction"})
			}
		}
	}
	return opts
}

func pick(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}

// Adjust returns current with opts applied. Bitrate reductions do not
// compound; the largest percentage wins. The last encoder preset wins.
func Adjust(current StreamSettings, opts []Optimization) StreamSettings {
	next := current
	maxCut := 0
	for _, o := range opts {
		switch o.Action {
		case ActionReduceBitrate:
			maxCut = max(maxCut, min(o.Percentage, 100))
		case ActionReduceResolution:
			if o.TargetWidth > 0 && o.TargetHeight > 0 {
				next.Width, next.Height = o.TargetWidth, o.TargetHeight
			}
		case ActionReduceFPS:
			if o.TargetFPS > 0 {
				next.FPS = o.TargetFPS
			}
		case ActionOptimizeEncoder:
			if o.Preset != "" {
				next.EncoderPreset = o.Preset
			}
		}
	}
	if maxCut > 0 {
		next.BitrateKbps = current.BitrateKbps * (100 - maxCut) / 100
	}
	return next
}

// Score rates one sample in [0,1]; 1 is a perfect stream.
func Score(m Metrics) float64 {
	score := 1.0
	if m.DroppedFrames > 0 {
		score -= min(0.5, float64(m.DroppedFrames)/1000)
	}
	if m.LatencyMS > 100 {
		score -= min(0.3, (m.LatencyMS-100)/2000)
	}
	score *= m.BufferHealth
	if m.CPUPercent > 70 {
		score -= min(0.2, (m.CPUPercent-70)/100)
	}
	return max(0, score)
}

// Health classifies a sample as good, warning or critical.
func Health(m Metrics) string {
	switch {
	case m.DroppedFrames > 500 || m.LatencyMS > 1000 || m.BufferHealth < 0.3:
		return "critical"
	case m.DroppedFrames > 200 || m.LatencyMS > 500 || m.BufferHealth < 0.5:
		return "warning"
	default:
		return "good"
	}
}

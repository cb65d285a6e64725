// ABOUTME: Stream-quality agent: samples platforms, recommends optimizations, applies them on request.
// ABOUTME: Keeps a bounded quality history for trend alerts and answers quality report requests.

package quality

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/2389/stream-agents/internal/agent"
)

// Kind is the agent kind name used in configuration.
const Kind = "stream_quality"

// KindTrendAlert is the recommendation kind emitted on a declining trend.
const KindTrendAlert = "quality_trend_alert"

const (
	optimizationTTL = 5 * time.Minute
	trendAlertTTL   = 30 * time.Minute
	trendSpan       = 10
	trendDecline    = 0.1
	maxTrendPoints  = 20
)

var (
	// ErrNoSampler indicates the agent was built without a Sampler.
	ErrNoSampler = errors.New("quality agent requires a sampler")
	// ErrRateLimited indicates a settings change was refused by the per-platform throttle.
	ErrRateLimited = errors.New("settings change rate limited")
	// ErrUnknownPlatform indicates a platform the agent does not monitor.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Sampler reads current stream metrics for a platform.
type Sampler interface {
	Sample(ctx context.Context, platform string) (Metrics, error)
}

// SettingsApplier pushes new encoder settings to the host.
type SettingsApplier interface {
	ApplySettings(ctx context.Context, platform string, s StreamSettings) error
}

// Params configures an Agent.
type Params struct {
	agent.Params
	Settings Settings
	Sampler  Sampler
	// Applier is optional; without one, settings are tracked locally only.
	Applier SettingsApplier
}

// HistoryPoint is one entry of the quality history.
type HistoryPoint struct {
	At        time.Time          `json:"timestamp"`
	Overall   float64            `json:"overall_quality"`
	Platforms map[string]Metrics `json:"platform_details"`
}

// Agent is the stream-quality agent.
type Agent struct {
	*agent.Base
	settings Settings
	sampler  Sampler
	applier  SettingsApplier
	throttle *throttle

	mu       sync.Mutex
	metrics  map[string]Metrics
	current  map[string]StreamSettings
	history  []HistoryPoint
	platform []string
}

// New builds a stopped quality agent.
func New(p Params) (*Agent, error) {
	if p.Sampler == nil {
		return nil, ErrNoSampler
	}
	if p.Kind == "" {
		p.Kind = Kind
	}
	a := &Agent{
		settings: p.Settings,
		sampler:  p.Sampler,
		applier:  p.Applier,
		throttle: newThrottle(p.Settings.MinApplyInterval, p.Settings.ApplyBurst),
		metrics:  make(map[string]Metrics),
		current:  make(map[string]StreamSettings),
	}
	a.Base = agent.NewBase(p.Params, a)
	return a, nil
}

// Initialize registers the configured platforms with their initial settings.
func (a *Agent) Initialize(context.Context) error {
	a.mu.Lock()
	for _, p := range a.settings.Platforms {
		a.addPlatformLocked(p)
	}
	n := len(a.platform)
	a.mu.Unlock()

	a.Logger().Info("stream quality initialized", "platforms", n, "auto_adjust", a.settings.AutoAdjust)
	return nil
}

// Cleanup is a no-op; the agent holds no external resources.
func (a *Agent) Cleanup(context.Context) error {
	a.Logger().Info("stream quality cleaned up")
	return nil
}

func (a *Agent) addPlatformLocked(name string) {
	if slices.Contains(a.platform, name) {
		return
	}
	a.platform = append(a.platform, name)
	a.current[name] = a.settings.Initial
}

// Process samples every platform, recommends optimizations for detected
// issues and updates the quality history.
func (a *Agent) Process(ctx context.Context) error {
	a.mu.Lock()
	platforms := slices.Clone(a.platform)
	a.mu.Unlock()

	var errs []error
	sampled := make(map[string]Metrics, len(platforms))
	for _, p := range platforms {
		m, err := a.sampler.Sample(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("sampling %s: %w", p, err))
			continue
		}
		if m.SampledAt.IsZero() {
			m.SampledAt = a.Now()
		}
		sampled[p] = m

		if m.DroppedFrames > 100 {
			a.Logger().Warn("high dropped frames", "platform", p, "dropped_frames", m.DroppedFrames)
		}
		if m.LatencyMS > 1000 {
			a.Logger().Warn("high network latency", "platform", p, "latency_ms", m.LatencyMS)
		}
	}

	a.mu.Lock()
	maps.Copy(a.metrics, sampled)
	a.mu.Unlock()

	for _, p := range platforms {
		m, ok := sampled[p]
		if !ok {
			continue
		}
		if issues := DetectIssues(m); len(issues) > 0 {
			a.recommend(p, issues)
		}
	}

	if len(sampled) > 0 {
		a.recordHistory(sampled)
	}
	return errors.Join(errs...)
}

func (a *Agent) recommend(platform string, issues []Issue) {
	opts := Plan(issues)
	if len(opts) == 0 {
		return
	}
	severity := OverallSeverity(issues)

	detected := make([]any, len(issues))
	for i, is := range issues {
		detected[i] = is.payload()
	}
	rec := a.CreateRecommendation(agent.KindQualityOptimization, 0.85, map[string]any{
		"platform":             platform,
		"optimizations":        optimizationsPayload(opts),
		"issues_detected":      detected,
		agent.PayloadSeverity:  severity.String(),
		agent.PayloadAutoApply: a.settings.AutoAdjust && severity != agent.SeverityHigh,
	}, optimizationTTL)

	priority := agent.PriorityMedium
	if severity == agent.SeverityHigh {
		priority = agent.PriorityHigh
	}
	a.SendMessage(agent.CoordinatorID, "quality_optimization_needed", map[string]any{"recommendation": rec.Payload}, priority)
}

func (a *Agent) recordHistory(sampled map[string]Metrics) {
	var total float64
	for _, m := range sampled {
		total += Score(m)
	}
	now := a.Now()
	point := HistoryPoint{At: now, Overall: total / float64(len(sampled)), Platforms: sampled}

	if point.Overall < a.settings.QualityThreshold {
		a.Logger().Info("overall quality below threshold",
			"overall", fmt.Sprintf("%.3f", point.Overall),
			"threshold", a.settings.QualityThreshold,
		)
	}

	a.mu.Lock()
	cutoff := now.Add(-a.settings.HistoryWindow)
	a.history = slices.DeleteFunc(append(a.history, point), func(h HistoryPoint) bool {
		return !h.At.After(cutoff)
	})
	recent, older, ok := trendWindows(a.history)
	a.mu.Unlock()

	if !ok {
		return
	}
	trend := recent - older
	switch {
	case trend < -trendDecline:
		rec := a.CreateRecommendation(KindTrendAlert, 0.9, map[string]any{
			"trend":          "declining",
			"magnitude":      -trend,
			"recent_average": recent,
			"older_average":  older,
			"recommendation": "review stream settings and consider conservative optimizations",
		}, trendAlertTTL)
		a.SendMessage(agent.CoordinatorID, "quality_trend_alert", map[string]any{
			"recommendation": rec.Payload,
			"decline":        -trend,
		}, agent.PriorityHigh)
	case trend > trendDecline:
		a.Logger().Info("quality trend improving", "trend", fmt.Sprintf("%.3f", trend))
	}
}

// trendWindows averages the last trendSpan points and the trendSpan before
// them. ok is false until both windows are full.
func trendWindows(h []HistoryPoint) (recent, older float64, ok bool) {
	if len(h) < 2*trendSpan {
		return 0, 0, false
	}
	avg := func(pts []HistoryPoint) float64 {
		var sum float64
		for _, p := range pts {
			sum += p.Overall
		}
		return sum / float64(len(pts))
	}
	n := len(h)
	return avg(h[n-trendSpan:]), avg(h[n-2*trendSpan : n-trendSpan]), true
}

// HandleMessage dispatches inbound bus messages.
func (a *Agent) HandleMessage(ctx context.Context, msg agent.Message) error {
	switch msg.Type {
	case "apply_optimizations", "adjust_settings":
		return a.handleApply(ctx, msg)
	case "quality_report_request":
		requester, _ := msg.Payload["requester"].(string)
		if requester == "" {
			requester = msg.Sender
		}
		a.SendMessage(requester, "quality_report", a.Report().payload(), agent.PriorityMedium)
	case "platform_status_update":
		a.updatePlatform(msg.Payload)
	case "coordination_status":
		a.Logger().Debug("coordination status", "active", msg.Payload["active_recommendations"])
	default:
		a.Logger().Warn("unknown message type", "type", msg.Type, "sender", msg.Sender)
	}
	return nil
}

func (a *Agent) handleApply(ctx context.Context, msg agent.Message) error {
	var req struct {
		Platform      string          `yaml:"platform"`
		Optimizations []Optimization  `yaml:"optimizations"`
		Settings      *StreamSettings `yaml:"settings"`
	}
	if err := agent.Decode(msg.Payload, &req); err != nil {
		return fmt.Errorf("%s payload: %w", msg.Type, err)
	}
	if req.Platform == "" {
		return fmt.Errorf("%s payload: missing platform", msg.Type)
	}

	var err error
	if req.Settings != nil {
		_, err = a.applySettings(ctx, req.Platform, func(StreamSettings) StreamSettings { return *req.Settings }, nil)
	} else {
		_, err = a.ApplyOptimizations(ctx, req.Platform, req.Optimizations)
	}
	if err != nil {
		// Reported to the coordinator as settings_failed; not an iteration failure.
		a.Logger().Warn("settings change not applied", "platform", req.Platform, "error", err)
	}
	return nil
}

// ApplyOptimizations adjusts the platform's settings, pushes them through
// the SettingsApplier and reports settings_applied or settings_failed to the
// coordinator.
func (a *Agent) ApplyOptimizations(ctx context.Context, platform string, opts []Optimization) (StreamSettings, error) {
	return a.applySettings(ctx, platform, func(cur StreamSettings) StreamSettings { return Adjust(cur, opts) }, opts)
}

func (a *Agent) applySettings(ctx context.Context, platform string, next func(StreamSettings) StreamSettings, opts []Optimization) (StreamSettings, error) {
	a.mu.Lock()
	old, ok := a.current[platform]
	a.mu.Unlock()

	fail := func(err error) (StreamSettings, error) {
		a.SendMessage(agent.CoordinatorID, "settings_failed", map[string]any{
			"platform": platform,
			"error":    err.Error(),
		}, agent.PriorityMedium)
		return old, err
	}

	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrUnknownPlatform, platform))
	}
	if !a.throttle.allow(platform, a.Now()) {
		return fail(fmt.Errorf("%w: %s", ErrRateLimited, platform))
	}

	updated := next(old)
	if a.applier != nil {
		if err := a.applier.ApplySettings(ctx, platform, updated); err != nil {
			return fail(fmt.Errorf("applying settings to %s: %w", platform, err))
		}
	}

	a.mu.Lock()
	a.current[platform] = updated
	a.mu.Unlock()

	a.Logger().Info("applied settings", "platform", platform, "bitrate", updated.BitrateKbps, "fps", updated.FPS)
	a.SendMessage(agent.CoordinatorID, "settings_applied", map[string]any{
		"platform":      platform,
		"old_settings":  old.payload(),
		"new_settings":  updated.payload(),
		"optimizations": optimizationsPayload(opts),
	}, agent.PriorityMedium)
	return updated, nil
}

func (a *Agent) updatePlatform(p map[string]any) {
	name, _ := p["platform"].(string)
	if name == "" {
		a.Logger().Warn("platform status update without platform")
		return
	}
	enabled := true
	if v, ok := p["enabled"].(bool); ok {
		enabled = v
	}

	a.mu.Lock()
	if enabled {
		a.addPlatformLocked(name)
	} else {
		a.platform = slices.DeleteFunc(a.platform, func(s string) bool { return s == name })
		delete(a.current, name)
		delete(a.metrics, name)
	}
	a.mu.Unlock()

	if !enabled {
		a.throttle.forget(name)
	}
	a.Logger().Info("platform status updated", "platform", name, "enabled", enabled)
}

// Manual optimization presets.
const (
	PresetConservative = "conservative"
	PresetAggressive   = "aggressive"
)

// ManualOptimization applies a named preset to platform. It returns false
// when the platform is unknown, the preset is unknown, or the change was
// refused.
func (a *Agent) ManualOptimization(ctx context.Context, platform, preset string) bool {
	var opts []Optimization
	switch preset {
	case PresetConservative:
		opts = []Optimization{{Action: ActionReduceBitrate, Percentage: 10, Reason: "manual conservative optimization"}}
	case PresetAggressive:
		opts = []Optimization{
			{Action: ActionReduceBitrate, Percentage: 20, Reason: "manual aggressive optimization"},
			{Action: ActionReduceResolution, TargetWidth: 1280, TargetHeight: 720, Reason: "manual aggressive optimization"},
		}
	default:
		return false
	}

	a.mu.Lock()
	_, known := a.current[platform]
	a.mu.Unlock()
	if !known {
		return false
	}
	_, err := a.ApplyOptimizations(ctx, platform, opts)
	return err == nil
}

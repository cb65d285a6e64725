// ABOUTME: Read-only views of the quality agent: current metrics and settings, trend points, health report.

package quality

import (
	"maps"
	"slices"
	"time"
)

// PlatformReport is one platform's entry in a Report.
type PlatformReport struct {
	Health   string         `json:"health"`
	Metrics  Metrics        `json:"metrics"`
	Settings StreamSettings `json:"current_settings"`
}

// Report is the answer to quality_report_request.
type Report struct {
	At              time.Time                 `json:"timestamp"`
	OverallHealth   string                    `json:"overall_health"`
	Platforms       map[string]PlatformReport `json:"platforms"`
	Recommendations int                       `json:"recommendations"`
}

// Report grades every sampled platform. Overall health is critical at three
// or more issue points, warning at one or more; a warning platform counts
// one point and a critical one three.
func (a *Agent) Report() Report {
	recent := len(a.RecentRecommendations(0))

	a.mu.Lock()
	defer a.mu.Unlock()

	r := Report{
		At:              a.Now(),
		OverallHealth:   "good",
		Platforms:       make(map[string]PlatformReport, len(a.metrics)),
		Recommendations: recent,
	}
	points := 0
	for name, m := range a.metrics {
		h := Health(m)
		switch h {
		case "warning":
			points++
		case "critical":
			points += 3
		}
		r.Platforms[name] = PlatformReport{Health: h, Metrics: m, Settings: a.current[name]}
	}
	switch {
	case points >= 3:
		r.OverallHealth = "critical"
	case points >= 1:
		r.OverallHealth = "warning"
	}
	return r
}

func (r Report) payload() map[string]any {
	platforms := make(map[string]any, len(r.Platforms))
	for name, p := range r.Platforms {
		platforms[name] = map[string]any{
			"health":           p.Health,
			"bitrate":          p.Metrics.BitrateKbps,
			"fps":              p.Metrics.FPS,
			"dropped_frames":   p.Metrics.DroppedFrames,
			"network_latency":  p.Metrics.LatencyMS,
			"buffer_health":    p.Metrics.BufferHealth,
			"cpu_usage":        p.Metrics.CPUPercent,
			"current_settings": p.Settings.payload(),
		}
	}
	return map[string]any{
		"timestamp":       r.At.Format(time.RFC3339),
		"overall_health":  r.OverallHealth,
		"platforms":       platforms,
		"recommendations": r.Recommendations,
	}
}

// Current is the snapshot returned by CurrentQuality.
type Current struct {
	Platforms []string                  `json:"monitored_platforms"`
	Metrics   map[string]Metrics        `json:"platforms"`
	Settings  map[string]StreamSettings `json:"current_settings"`
}

// CurrentQuality returns the latest sample and settings per platform.
func (a *Agent) CurrentQuality() Current {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Current{
		Platforms: slices.Clone(a.platform),
		Metrics:   maps.Clone(a.metrics),
		Settings:  maps.Clone(a.current),
	}
}

// Trends returns up to the last 20 history points, oldest first.
func (a *Agent) Trends() []HistoryPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := max(0, len(a.history)-maxTrendPoints)
	return slices.Clone(a.history[start:])
}

// Details is the kind-specific view served by the HTTP API.
func (a *Agent) Details() any {
	return struct {
		Current
		Trends []HistoryPoint `json:"trends"`
	}{a.CurrentQuality(), a.Trends()}
}

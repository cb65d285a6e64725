// ABOUTME: Typed tuning for the content-curation agent, decoded from the agent's config settings block.

package curation

import (
	"fmt"
	"slices"
	"time"

	"github.com/adhocore/gronx"

	"github.com/2389/stream-agents/internal/agent"
)

// Settings tunes the curation agent.
type Settings struct {
	// MinConfidence filters per-video suggestions in analysis results.
	MinConfidence float64 `yaml:"min_confidence"`
	// EngagementWeight is the engagement share of the combined score; the
	// quality share is 1-EngagementWeight.
	EngagementWeight float64 `yaml:"engagement_weight"`
	PeakHours        []int   `yaml:"peak_hours"`
	// PeakSchedule is a 5-field cron expression matched per minute. When
	// set it replaces PeakHours.
	PeakSchedule string `yaml:"peak_schedule"`
	// InsightChance is the per-iteration probability of a duration insight.
	InsightChance        float64 `yaml:"insight_chance"`
	PreferredDurationMin float64 `yaml:"preferred_duration_min"`
	PreferredDurationMax float64 `yaml:"preferred_duration_max"`
	AutoApplyPlaylist    bool    `yaml:"auto_apply_playlist"`
	AutoApplyStrategy    bool    `yaml:"auto_apply_strategy"`
}

// DefaultSettings returns the built-in tuning.
func DefaultSettings() Settings {
	return Settings{
		MinConfidence:        0.6,
		EngagementWeight:     0.6,
		PeakHours:            []int{19, 20, 21},
		InsightChance:        0.3,
		PreferredDurationMin: 180,
		PreferredDurationMax: 300,
	}
}

// DecodeSettings overlays raw onto DefaultSettings and validates the result.
func DecodeSettings(raw map[string]any) (Settings, error) {
	s := DefaultSettings()
	if err := agent.Decode(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("curation settings: %w", err)
	}
	if s.EngagementWeight < 0 || s.EngagementWeight > 1 {
		return Settings{}, fmt.Errorf("curation settings: engagement_weight %v outside [0,1]", s.EngagementWeight)
	}
	for _, h := range s.PeakHours {
		if h < 0 || h > 23 {
			return Settings{}, fmt.Errorf("curation settings: peak hour %d outside 0-23", h)
		}
	}
	if s.PeakSchedule != "" && !gronx.New().IsValid(s.PeakSchedule) {
		return Settings{}, fmt.Errorf("curation settings: invalid peak_schedule %q", s.PeakSchedule)
	}
	if s.PreferredDurationMax < s.PreferredDurationMin {
		return Settings{}, fmt.Errorf("curation settings: preferred_duration_max below min")
	}
	return s, nil
}

// IsPeak reports whether t falls in the peak window.
func (s Settings) IsPeak(t time.Time) bool {
	if s.PeakSchedule == "" {
		return slices.Contains(s.PeakHours, t.Hour())
	}
	due, err := gronx.New().IsDue(s.PeakSchedule, t)
	return err == nil && due
}

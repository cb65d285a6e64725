// ABOUTME: Typed tuning for the stream-quality agent, decoded from the agent's config settings block.

package quality

import (
	"errors"
	"fmt"
	"time"

	"github.com/2389/stream-agents/internal/agent"
)

// Settings tunes the quality agent.
type Settings struct {
	Platforms []string `yaml:"platforms"`
	// AutoAdjust marks medium-severity recommendations for auto-apply.
	AutoAdjust bool `yaml:"auto_adjust"`
	// QualityThreshold is the overall score below which a sample is logged
	// as degraded.
	QualityThreshold float64 `yaml:"quality_threshold"`
	// MinApplyInterval spaces host setting changes per platform; zero
	// disables throttling.
	MinApplyInterval time.Duration  `yaml:"min_apply_interval"`
	ApplyBurst       int            `yaml:"apply_burst"`
	HistoryWindow    time.Duration  `yaml:"history_window"`
	Initial          StreamSettings `yaml:"initial"`
}

// DefaultSettings returns the built-in tuning.
func DefaultSettings() Settings {
	return Settings{
		Platforms:        []string{"primary"},
		AutoAdjust:       true,
		QualityThreshold: 0.8,
		MinApplyInterval: 30 * time.Second,
		ApplyBurst:       1,
		HistoryWindow:    time.Hour,
		Initial: StreamSettings{
			BitrateKbps: 2500,
			Width:       1920,
			Height:      1080,
			FPS:         30,
			Encoder:     "x264",
		},
	}
}

// DecodeSettings overlays raw onto DefaultSettings and validates the result.
func DecodeSettings(raw map[string]any) (Settings, error) {
	s := DefaultSettings()
	if err := agent.Decode(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("quality settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("quality settings: %w", err)
	}
	return s, nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.MinApplyInterval < 0 {
		errs = append(errs, errors.New("min_apply_interval must not be negative"))
	}
	if s.ApplyBurst < 1 {
		errs = append(errs, errors.New("apply_burst must be at least 1"))
	}
	if s.HistoryWindow <= 0 {
		errs = append(errs, errors.New("history_window must be positive"))
	}
	if s.Initial.BitrateKbps <= 0 || s.Initial.FPS <= 0 {
		errs = append(errs, errors.New("initial bitrate and fps must be positive"))
	}
	for _, p := range s.Platforms {
		if p == "" {
			errs = append(errs, errors.New("platform names must not be empty"))
			break
		}
	}
	return errors.Join(errs...)
}

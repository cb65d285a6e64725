// ABOUTME: Simulated host: scores videos with keyword heuristics plus noise, samples jittery stream metrics,
// ABOUTME: and records applied encoder settings so later samples track them.

package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/2389/stream-agents/internal/curation"
	"github.com/2389/stream-agents/internal/quality"
)

var popularChannels = []string{"TechChannel", "PopularCreator"}

var categoryEngagement = map[string]float64{
	curation.CategoryTech:          0.75,
	curation.CategoryEntertainment: 0.85,
	curation.CategoryEducational:   0.65,
}

// Stream implements curation.Scorer, quality.Sampler and
// quality.SettingsApplier over a seeded random source.
type Stream struct {
	mu       sync.Mutex
	rng      *rand.Rand
	initial  quality.StreamSettings
	settings map[string]quality.StreamSettings
	applied  int
	logger   *slog.Logger
}

// New creates a simulated host. A zero seed picks a random one.
func New(seed uint64, initial quality.StreamSettings, logger *slog.Logger) *Stream {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		initial:  initial,
		settings: make(map[string]quality.StreamSettings),
		logger:   logger.With("component", "simulate"),
	}
}

func (s *Stream) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 { return min(max(v, 0), 1) }

// Score rates title, duration and channel, then adds model noise.
func (s *Stream) Score(_ context.Context, v curation.Video) (curation.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := 0.5
	if n := len(v.Title); n > 10 && n < 100 {
		q += 0.1
	}
	if v.DurationSeconds >= 120 && v.DurationSeconds <= 600 {
		q += 0.2
	}
	for _, c := range popularChannels {
		if v.Channel == c {
			q += 0.2
		}
	}
	q = clamp01(q + s.uniform(-0.1, 0.1))

	e := 0.5
	title := strings.ToLower(v.Title)
	switch {
	case containsAny(title, "tutorial", "how to", "guide"):
		e += 0.2
	case containsAny(title, "funny", "amazing", "incredible"):
		e += 0.3
	}
	switch {
	case v.DurationSeconds < 60:
		e -= 0.1
	case v.DurationSeconds > 900:
		e -= 0.2
	}
	if hist, ok := categoryEngagement[curation.Categorize(v)]; ok {
		e = (e + hist) / 2
	}
	e = clamp01(e + s.uniform(-0.15, 0.15))

	return curation.Score{Quality: q, Engagement: e}, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Sample produces metrics around the platform's current settings. Roughly
// two samples in five are from a congested network.
func (s *Stream) Sample(_ context.Context, platform string) (quality.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.currentLocked(platform)
	m := quality.Metrics{
		BitrateKbps:   float64(cur.BitrateKbps) * s.uniform(0.9, 1.1),
		FPS:           float64(cur.FPS) * s.uniform(0.95, 1.0),
		Width:         cur.Width,
		Height:        cur.Height,
		CPUPercent:    s.uniform(30, 85),
		MemoryPercent: s.uniform(40, 75),
		SampledAt:     time.Now(),
	}
	if s.uniform(0.7, 0.95) > 0.85 {
		m.DroppedFrames = s.rng.IntN(51)
		m.LatencyMS = s.uniform(50, 200)
		m.BufferHealth = s.uniform(0.8, 1.0)
	} else {
		m.DroppedFrames = 100 + s.rng.IntN(401)
		m.LatencyMS = s.uniform(300, 1500)
		m.BufferHealth = s.uniform(0.3, 0.7)
	}
	return m, nil
}

// ApplySettings records next as the platform's settings.
func (s *Stream) ApplySettings(_ context.Context, platform string, next quality.StreamSettings) error {
	s.mu.Lock()
	prev := s.currentLocked(platform)
	s.settings[platform] = next
	s.applied++
	s.mu.Unlock()

	s.logger.Info("encoder settings applied",
		"platform", platform,
		"bitrate_from", prev.BitrateKbps,
		"bitrate_to", next.BitrateKbps,
		"resolution", fmt.Sprintf("%dx%d", next.Width, next.Height),
		"fps", next.FPS,
		"preset", next.EncoderPreset,
	)
	return nil
}

// Settings returns the last applied settings for platform.
func (s *Stream) Settings(platform string) quality.StreamSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(platform)
}

// Applied returns how many settings changes were applied.
func (s *Stream) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

func (s *Stream) currentLocked(platform string) quality.StreamSettings {
	if cur, ok := s.settings[platform]; ok {
		return cur
	}
	return s.initial
}

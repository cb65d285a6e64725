// ABOUTME: Content-curation agent: peak-hour and duration strategies, video analysis, playlist optimization.
// ABOUTME: Embeds agent.Base for lifecycle and talks to the coordinator over the bus.

package curation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/2389/stream-agents/internal/agent"
)

// Kind is the agent kind name used in configuration.
const Kind = "content_curation"

// Recommendation kinds emitted only by this agent.
const (
	KindOptimalDuration = "optimal_video_duration"
	KindHighPerformer   = "high_performer_analysis"
)

const (
	peakStrategyTTL   = 30 * time.Minute
	durationTTL       = time.Hour
	playlistTTL       = 2 * time.Hour
	highPerformerTTL  = 24 * time.Hour
	insightsWindow    = time.Hour
	highPerformerMark = 0.8
)

// ErrNoScorer indicates the agent was built without a Scorer.
var ErrNoScorer = errors.New("curation agent requires a scorer")

// Scorer rates a video. It is supplied by the host.
type Scorer interface {
	Score(ctx context.Context, v Video) (Score, error)
}

// Params configures an Agent.
type Params struct {
	agent.Params
	Settings Settings
	Scorer   Scorer
	// Chance returns a value in [0,1); nil uses math/rand.
	Chance func() float64
}

// CategoryStats is the running engagement record for one category. The
// seeded baseline counts as one sample.
type CategoryStats struct {
	AvgEngagement      float64 `json:"avg_engagement"`
	AvgDurationSeconds float64 `json:"avg_duration"`
	Samples            int     `json:"samples"`
}

// Agent is the content-curation agent.
type Agent struct {
	*agent.Base
	settings Settings
	scorer   Scorer
	chance   func() float64

	mu              sync.Mutex
	performance     map[string]CategoryStats
	videoEngagement map[string]float64
	strategy        string
	playlistUpdates int
	lastStatus      map[string]any
}

// New builds a stopped curation agent.
func New(p Params) (*Agent, error) {
	if p.Scorer == nil {
		return nil, ErrNoScorer
	}
	if p.Kind == "" {
		p.Kind = Kind
	}
	if p.Chance == nil {
		p.Chance = rand.Float64
	}
	a := &Agent{
		settings:        p.Settings,
		scorer:          p.Scorer,
		chance:          p.Chance,
		performance:     make(map[string]CategoryStats),
		videoEngagement: make(map[string]float64),
	}
	a.Base = agent.NewBase(p.Params, a)
	return a, nil
}

// Initialize seeds the category performance baseline.
func (a *Agent) Initialize(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.performance = map[string]CategoryStats{
		CategoryTech:          {AvgEngagement: 0.75, AvgDurationSeconds: 300, Samples: 1},
		CategoryEntertainment: {AvgEngagement: 0.85, AvgDurationSeconds: 180, Samples: 1},
		CategoryEducational:   {AvgEngagement: 0.65, AvgDurationSeconds: 420, Samples: 1},
	}
	a.Logger().Info("content curation initialized", "peak_hours", a.settings.PeakHours, "peak_schedule", a.settings.PeakSchedule)
	return nil
}

// Cleanup is a no-op; the agent holds no external resources.
func (a *Agent) Cleanup(context.Context) error {
	a.Logger().Info("content curation cleaned up")
	return nil
}

// Process emits the periodic strategy recommendations.
func (a *Agent) Process(context.Context) error {
	if a.chance() < a.settings.InsightChance {
		a.durationInsight()
	}
	if a.settings.IsPeak(a.Now()) && !a.hasActive(agent.KindPeakHourContent) {
		a.peakHourStrategy()
	}
	return nil
}

func (a *Agent) durationInsight() {
	payload := map[string]any{
		"recommended_duration_min": a.settings.PreferredDurationMin,
		"recommended_duration_max": a.settings.PreferredDurationMax,
		"reason":                   "videos in this duration range show higher engagement",
	}
	a.CreateRecommendation(KindOptimalDuration, 0.8, payload, durationTTL)

	msg := maps.Clone(payload)
	msg["type"] = KindOptimalDuration
	a.SendMessage(agent.CoordinatorID, "content_recommendation", map[string]any{"recommendation": msg}, agent.PriorityMedium)
}

func (a *Agent) peakHourStrategy() {
	rec := a.CreateRecommendation(agent.KindPeakHourContent, 0.9, map[string]any{
		"strategy":               "high_engagement",
		"recommended_categories": []any{CategoryEntertainment, CategoryTech},
		"avoid_categories":       []any{CategoryEducational},
		"reason":                 "peak viewing hours, prioritize high-engagement content",
		agent.PayloadAutoApply:   a.settings.AutoApplyStrategy,
	}, peakStrategyTTL)
	a.SendMessage(agent.CoordinatorID, "peak_hour_strategy", map[string]any{"recommendation": rec.Payload}, agent.PriorityHigh)
}

// hasActive reports whether an unexpired recommendation of kind exists.
func (a *Agent) hasActive(kind string) bool {
	return slices.ContainsFunc(a.RecentRecommendations(peakStrategyTTL), func(r agent.Recommendation) bool {
		return r.Kind == kind
	})
}

// HandleMessage dispatches inbound bus messages.
func (a *Agent) HandleMessage(ctx context.Context, msg agent.Message) error {
	switch msg.Type {
	case "analyze_video":
		var v Video
		if err := agent.Decode(msg.Payload["video"], &v); err != nil {
			return fmt.Errorf("analyze_video payload: %w", err)
		}
		_, err := a.AnalyzeVideo(ctx, v)
		return err
	case "optimize_playlist":
		var videos []Video
		if err := agent.Decode(msg.Payload["videos"], &videos); err != nil {
			return fmt.Errorf("optimize_playlist payload: %w", err)
		}
		return a.optimizeAndRecommend(ctx, videos)
	case "update_performance":
		a.updatePerformance(msg.Payload)
	case "strategy_update":
		strategy, _ := msg.Payload["strategy"].(string)
		a.mu.Lock()
		a.strategy = strategy
		a.mu.Unlock()
		a.Logger().Info("content strategy updated", "strategy", strategy)
	case "playlist_updated":
		a.mu.Lock()
		a.playlistUpdates++
		a.mu.Unlock()
		a.Logger().Info("playlist update confirmed", "video_count", msg.Payload["video_count"])
	case "coordination_status":
		a.mu.Lock()
		a.lastStatus = maps.Clone(msg.Payload)
		a.mu.Unlock()
	default:
		a.Logger().Warn("unknown message type", "type", msg.Type, "sender", msg.Sender)
	}
	return nil
}

// Suggestion is a per-video hint inside an Analysis.
type Suggestion struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the result of scoring one video.
type Analysis struct {
	VideoID     string       `json:"video_id"`
	Quality     float64      `json:"quality_score"`
	Engagement  float64      `json:"engagement_prediction"`
	Category    string       `json:"category"`
	Confidence  float64      `json:"confidence"`
	Suggestions []Suggestion `json:"recommendations"`
}

// AnalyzeVideo scores v, reports video_analysis_complete to the
// coordinator and returns the analysis.
func (a *Agent) AnalyzeVideo(ctx context.Context, v Video) (Analysis, error) {
	score, err := a.scorer.Score(ctx, v)
	if err != nil {
		return Analysis{}, fmt.Errorf("scoring video %s: %w", v.ID, err)
	}

	an := Analysis{
		VideoID:    v.ID,
		Quality:    score.Quality,
		Engagement: score.Engagement,
		Category:   Categorize(v),
		Confidence: min(score.Quality, score.Engagement),
	}
	if score.Quality < 0.6 {
		an.Suggestions = append(an.Suggestions, Suggestion{"quality_improvement", "consider improving video quality", 0.8})
	}
	if score.Engagement > 0.8 {
		an.Suggestions = append(an.Suggestions, Suggestion{"priority_placement", "high engagement predicted, consider priority placement", score.Engagement})
	}
	an.Suggestions = slices.DeleteFunc(an.Suggestions, func(s Suggestion) bool {
		return s.Confidence < a.settings.MinConfidence
	})

	suggestions := make([]any, 0, len(an.Suggestions))
	for _, s := range an.Suggestions {
		suggestions = append(suggestions, map[string]any{"type": s.Type, "message": s.Message, "confidence": s.Confidence})
	}
	a.SendMessage(agent.CoordinatorID, "video_analysis_complete", map[string]any{
		"video_id":              an.VideoID,
		"quality_score":         an.Quality,
		"engagement_prediction": an.Engagement,
		"category":              an.Category,
		"recommendations":       suggestions,
	}, agent.PriorityMedium)
	return an, nil
}

// OptimizePlaylist returns videos reordered for engagement flow.
func (a *Agent) OptimizePlaylist(ctx context.Context, videos []Video) ([]Video, error) {
	scored := make([]Scored, 0, len(videos))
	for _, v := range videos {
		s, err := a.scorer.Score(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("scoring video %s: %w", v.ID, err)
		}
		scored = append(scored, Scored{Video: v, Score: s.Combined(a.settings.EngagementWeight)})
	}
	return Reorder(scored), nil
}

func (a *Agent) optimizeAndRecommend(ctx context.Context, videos []Video) error {
	if len(videos) == 0 {
		return nil
	}
	ordered, err := a.OptimizePlaylist(ctx, videos)
	if err != nil {
		return err
	}

	rec := a.CreateRecommendation(agent.KindPlaylistOptimization, 0.85, map[string]any{
		"original_count":        len(videos),
		"optimized_order":       videoIDs(ordered),
		"optimization_strategy": "engagement_maximization",
		"expected_improvement":  "15-25% increase in viewer retention",
		agent.PayloadAutoApply:  a.settings.AutoApplyPlaylist,
	}, playlistTTL)
	a.SendMessage(agent.CoordinatorID, "playlist_optimized", map[string]any{"recommendation": rec.Payload}, agent.PriorityHigh)
	return nil
}

func (a *Agent) updatePerformance(p map[string]any) {
	videoID, _ := p["video_id"].(string)
	if videoID == "" {
		a.Logger().Warn("performance update without video_id")
		return
	}
	engagement := toFloat(p["engagement"])

	a.mu.Lock()
	a.videoEngagement[videoID] = engagement
	if category, ok := p["category"].(string); ok && category != "" {
		st := a.performance[category]
		st.Samples++
		st.AvgEngagement += (engagement - st.AvgEngagement) / float64(st.Samples)
		a.performance[category] = st
	}
	a.mu.Unlock()

	a.Logger().Info("updated performance data", "video_id", videoID, "engagement", fmt.Sprintf("%.2f", engagement))

	if engagement > highPerformerMark {
		a.CreateRecommendation(KindHighPerformer, 0.9, map[string]any{
			"video_id":       videoID,
			"engagement":     engagement,
			"recommendation": "analyze successful elements for future content selection",
		}, highPerformerTTL)
	}
}

// Insights summarises what the agent has learned and recommended.
type Insights struct {
	TotalRecommendations  int                      `json:"total_recommendations"`
	RecentRecommendations int                      `json:"recent_recommendations"`
	PeakHours             []int                    `json:"peak_hours"`
	PeakSchedule          string                   `json:"peak_schedule,omitempty"`
	PreferredDuration     [2]float64               `json:"preferred_duration"`
	Performance           map[string]CategoryStats `json:"performance_insights"`
	ActiveStrategies      []string                 `json:"active_strategies"`
	CurrentStrategy       string                   `json:"current_strategy,omitempty"`
	PlaylistUpdates       int                      `json:"playlist_updates"`
	TrackedVideos         int                      `json:"tracked_videos"`
}

// Insights returns a snapshot of the agent's learned state.
func (a *Agent) Insights() Insights {
	recent := a.RecentRecommendations(insightsWindow)
	strategies := make([]string, 0, len(recent))
	for _, r := range recent {
		strategies = append(strategies, r.Kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return Insights{
		TotalRecommendations:  a.TotalRecommendations(),
		RecentRecommendations: len(recent),
		PeakHours:             slices.Clone(a.settings.PeakHours),
		PeakSchedule:          a.settings.PeakSchedule,
		PreferredDuration:     [2]float64{a.settings.PreferredDurationMin, a.settings.PreferredDurationMax},
		Performance:           maps.Clone(a.performance),
		ActiveStrategies:      strategies,
		CurrentStrategy:       a.strategy,
		PlaylistUpdates:       a.playlistUpdates,
		TrackedVideos:         len(a.videoEngagement),
	}
}

// Details is the kind-specific view served by the HTTP API.
func (a *Agent) Details() any { return a.Insights() }

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

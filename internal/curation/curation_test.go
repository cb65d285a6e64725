// ABOUTME: Tests for the content-curation agent's strategies, message handlers and playlist ordering.

package curation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stream-agents/internal/agent"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []agent.Message
}

func (c *capturePublisher) Publish(msg agent.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *capturePublisher) ofType(msgType string) []agent.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []agent.Message
	for _, m := range c.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type tableScorer struct {
	scores map[string]Score
	err    error
}

func (s tableScorer) Score(_ context.Context, v Video) (Score, error) {
	if s.err != nil {
		return Score{}, s.err
	}
	return s.scores[v.ID], nil
}

type fixture struct {
	agent *Agent
	pub   *capturePublisher
	now   time.Time
}

func newFixture(t *testing.T, now time.Time, settings Settings, scorer Scorer, chance float64) *fixture {
	t.Helper()
	f := &fixture{pub: &capturePublisher{}, now: now}
	a, err := New(Params{
		Params: agent.Params{
			ID:      "curator",
			Enabled: true,
			Bus:     f.pub,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			Now:     func() time.Time { return f.now },
		},
		Settings: settings,
		Scorer:   scorer,
		Chance:   func() float64 { return chance },
	})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(t.Context()))
	f.agent = a
	return f
}

func at(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 15, 0, 0, time.UTC)
}

func recsOfKind(a *Agent, kind string) []agent.Recommendation {
	var out []agent.Recommendation
	for _, r := range a.AllRecommendations() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestNew_RequiresScorer(t *testing.T) {
	_, err := New(Params{Params: agent.Params{ID: "x"}})
	assert.ErrorIs(t, err, ErrNoScorer)
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s, err = DecodeSettings(map[string]any{
		"peak_hours":          []any{18, 19},
		"auto_apply_playlist": true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{18, 19}, s.PeakHours)
	assert.True(t, s.AutoApplyPlaylist)
	assert.Equal(t, 0.6, s.MinConfidence)

	_, err = DecodeSettings(map[string]any{"peak_hours": []any{25}})
	assert.Error(t, err)
	_, err = DecodeSettings(map[string]any{"engagement_weight": 1.5})
	assert.Error(t, err)
	_, err = DecodeSettings(map[string]any{"preferred_duration_min": 400})
	assert.Error(t, err)
	_, err = DecodeSettings(map[string]any{"peak_schedule": "every evening"})
	assert.Error(t, err)
}

func TestSettings_IsPeak(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC) }

	hours := DefaultSettings()
	assert.True(t, hours.IsPeak(at(19, 0)))
	assert.True(t, hours.IsPeak(at(21, 59)))
	assert.False(t, hours.IsPeak(at(22, 0)))

	// Weekend afternoons only; 2026-03-14 is a Saturday.
	sched, err := DecodeSettings(map[string]any{"peak_schedule": "* 14-16 * * 6,0"})
	require.NoError(t, err)
	assert.True(t, sched.IsPeak(at(15, 30)))
	assert.False(t, sched.IsPeak(at(19, 0)), "schedule replaces peak_hours")
	assert.False(t, sched.IsPeak(at(15, 30).AddDate(0, 0, 2)))
}

func TestReorder_EngagementFlow(t *testing.T) {
	v := func(id string) Video { return Video{ID: id} }
	got := Reorder([]Scored{
		{v("C"), 0.5},
		{v("F"), 0.2},
		{v("A"), 0.9},
		{v("E"), 0.45},
		{v("B"), 0.8},
		{v("D"), 0.6},
	})
	assert.Equal(t, []string{"A", "D", "C", "B", "E", "F"}, videoIDs(got))

	assert.Empty(t, Reorder(nil))
}

func TestReorder_OnlyHighScores(t *testing.T) {
	got := Reorder([]Scored{{Video{ID: "b"}, 0.8}, {Video{ID: "a"}, 0.95}, {Video{ID: "c"}, 0.75}})
	assert.Equal(t, []string{"a", "b", "c"}, videoIDs(got))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Go Programming Tutorial", CategoryTech},
		{"Funny cats compilation", CategoryEntertainment},
		{"Learn to knit", CategoryEducational},
		{"Sunset timelapse", CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(Video{Title: tt.title}))
		})
	}
}

func TestScore_Combined(t *testing.T) {
	s := Score{Quality: 0.5, Engagement: 1.0}
	assert.InDelta(t, 0.8, s.Combined(0.6), 1e-9)
	assert.InDelta(t, 1.0, s.Combined(2), 1e-9)
}

func TestProcess_PeakHourStrategy(t *testing.T) {
	f := newFixture(t, at(20), DefaultSettings(), tableScorer{}, 1)

	require.NoError(t, f.agent.Process(t.Context()))
	recs := recsOfKind(f.agent, agent.KindPeakHourContent)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.9, recs[0].Confidence)
	require.NotNil(t, recs[0].ExpiresAt)
	assert.Equal(t, 30*time.Minute, recs[0].ExpiresAt.Sub(recs[0].CreatedAt))
	assert.Equal(t, "high_engagement", recs[0].Payload["strategy"])

	msgs := f.pub.ofType("peak_hour_strategy")
	require.Len(t, msgs, 1)
	assert.Equal(t, agent.CoordinatorID, msgs[0].Recipient)
	assert.Equal(t, agent.PriorityHigh, msgs[0].Priority)

	// No second strategy while the first is live.
	require.NoError(t, f.agent.Process(t.Context()))
	assert.Len(t, recsOfKind(f.agent, agent.KindPeakHourContent), 1)

	f.now = f.now.Add(31 * time.Minute)
	require.NoError(t, f.agent.Process(t.Context()))
	assert.Len(t, recsOfKind(f.agent, agent.KindPeakHourContent), 2)
}

func TestProcess_OffPeakIsQuiet(t *testing.T) {
	f := newFixture(t, at(10), DefaultSettings(), tableScorer{}, 1)
	require.NoError(t, f.agent.Process(t.Context()))
	assert.Zero(t, f.agent.TotalRecommendations())
	assert.Empty(t, f.pub.msgs)
}

func TestProcess_DurationInsight(t *testing.T) {
	f := newFixture(t, at(10), DefaultSettings(), tableScorer{}, 0)
	require.NoError(t, f.agent.Process(t.Context()))

	recs := recsOfKind(f.agent, KindOptimalDuration)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.8, recs[0].Confidence)
	assert.Equal(t, 180.0, recs[0].Payload["recommended_duration_min"])

	msgs := f.pub.ofType("content_recommendation")
	require.Len(t, msgs, 1)
	inner := msgs[0].Payload["recommendation"].(map[string]any)
	assert.Equal(t, KindOptimalDuration, inner["type"])
	assert.NotContains(t, recs[0].Payload, "type", "message decoration must not leak into the recommendation")
}

func TestHandleMessage_AnalyzeVideo(t *testing.T) {
	scorer := tableScorer{scores: map[string]Score{"v1": {Quality: 0.5, Engagement: 0.9}}}
	f := newFixture(t, at(10), DefaultSettings(), scorer, 1)

	err := f.agent.HandleMessage(t.Context(), agent.NewMessage("host", "curator", "analyze_video", map[string]any{
		"video": map[string]any{"id": "v1", "title": "Coding live", "duration": 240.0},
	}, agent.PriorityMedium))
	require.NoError(t, err)

	msgs := f.pub.ofType("video_analysis_complete")
	require.Len(t, msgs, 1)
	p := msgs[0].Payload
	assert.Equal(t, "v1", p["video_id"])
	assert.Equal(t, CategoryTech, p["category"])
	assert.Len(t, p["recommendations"], 2)
}

func TestAnalyzeVideo_FiltersLowConfidenceSuggestions(t *testing.T) {
	settings := DefaultSettings()
	settings.MinConfidence = 0.85
	scorer := tableScorer{scores: map[string]Score{"v": {Quality: 0.4, Engagement: 0.82}}}
	f := newFixture(t, at(10), settings, scorer, 1)

	an, err := f.agent.AnalyzeVideo(t.Context(), Video{ID: "v"})
	require.NoError(t, err)
	assert.Empty(t, an.Suggestions)
	assert.Equal(t, 0.4, an.Confidence)
}

func TestHandleMessage_ScorerFailure(t *testing.T) {
	f := newFixture(t, at(10), DefaultSettings(), tableScorer{err: errors.New("model offline")}, 1)
	err := f.agent.HandleMessage(t.Context(), agent.NewMessage("host", "curator", "analyze_video", map[string]any{
		"video": map[string]any{"id": "v1"},
	}, agent.PriorityMedium))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestHandleMessage_OptimizePlaylist(t *testing.T) {
	settings := DefaultSettings()
	settings.AutoApplyPlaylist = true
	scorer := tableScorer{scores: map[string]Score{
		"a": {Quality: 0.9, Engagement: 0.9},
		"b": {Quality: 0.1, Engagement: 0.1},
		"c": {Quality: 0.5, Engagement: 0.5},
	}}
	f := newFixture(t, at(10), settings, scorer, 1)

	err := f.agent.HandleMessage(t.Context(), agent.NewMessage("host", "curator", "optimize_playlist", map[string]any{
		"videos": []any{
			map[string]any{"id": "b"},
			map[string]any{"id": "c"},
			map[string]any{"id": "a"},
		},
	}, agent.PriorityMedium))
	require.NoError(t, err)

	recs := recsOfKind(f.agent, agent.KindPlaylistOptimization)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.85, recs[0].Confidence)
	assert.Equal(t, []string{"a", "c", "b"}, recs[0].Payload["optimized_order"])
	assert.True(t, recs[0].AutoApply())
	assert.Equal(t, 2*time.Hour, recs[0].ExpiresAt.Sub(recs[0].CreatedAt))

	msgs := f.pub.ofType("playlist_optimized")
	require.Len(t, msgs, 1)
	assert.Equal(t, agent.PriorityHigh, msgs[0].Priority)

	// Empty playlists produce nothing.
	require.NoError(t, f.agent.HandleMessage(t.Context(), agent.NewMessage("host", "curator", "optimize_playlist", nil, agent.PriorityMedium)))
	assert.Len(t, recsOfKind(f.agent, agent.KindPlaylistOptimization), 1)
}

func TestHandleMessage_UpdatePerformance(t *testing.T) {
	f := newFixture(t, at(10), DefaultSettings(), tableScorer{}, 1)

	send := func(payload map[string]any) {
		require.NoError(t, f.agent.HandleMessage(t.Context(), agent.NewMessage("host", "curator", "update_performance", payload, agent.PriorityLow)))
	}
	send(map[string]any{"video_id": "v1", "engagement": 0.5, "category": CategoryTech})
	send(map[string]any{"video_id": "v2", "engagement": 0.95})
	send(map[string]any{"engagement": 0.99})

	recs := recsOfKind(f.agent, KindHighPerformer)
	require.Len(t, recs, 1)
	assert.Equal(t, "v2", recs[0].Payload["video_id"])
	assert.Equal(t, 24*time.Hour, recs[0].ExpiresAt.Sub(recs[0].CreatedAt))

	in := f.agent.Insights()
	assert.Equal(t, 2, in.TrackedVideos)
	assert.InDelta(t, 0.625, in.Performance[CategoryTech].AvgEngagement, 1e-9)
	assert.Equal(t, 2, in.Performance[CategoryTech].Samples)
}

func TestHandleMessage_CoordinatorFeedback(t *testing.T) {
	f := newFixture(t, at(10), DefaultSettings(), tableScorer{}, 1)

	for _, msg := range []agent.Message{
		agent.NewMessage(agent.CoordinatorID, "curator", "strategy_update", map[string]any{"strategy": "high_engagement"}, agent.PriorityMedium),
		agent.NewMessage(agent.CoordinatorID, "curator", "playlist_updated", map[string]any{"status": "applied", "video_count": 3}, agent.PriorityMedium),
		agent.NewMessage(agent.CoordinatorID, agent.Broadcast, "coordination_status", map[string]any{"agent_count": 2}, agent.PriorityLow),
		agent.NewMessage("someone", "curator", "what_is_this", nil, agent.PriorityLow),
	} {
		require.NoError(t, f.agent.HandleMessage(t.Context(), msg))
	}

	in := f.agent.Insights()
	assert.Equal(t, "high_engagement", in.CurrentStrategy)
	assert.Equal(t, 1, in.PlaylistUpdates)
	assert.Equal(t, []int{19, 20, 21}, in.PeakHours)
	assert.Len(t, in.Performance, 3)
}

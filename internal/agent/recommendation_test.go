// ABOUTME: Tests for recommendation equality, expiry, payload accessors and severity ordering.

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecommendation_Equal(t *testing.T) {
	now := time.Now()
	a := newRecommendation("quality", "quality_optimization", 0.8, map[string]any{
		"platform":      "youtube",
		"optimizations": []any{map[string]any{"action": "reduce_bitrate", "percentage": 10}},
	}, now, time.Minute)

	same := a
	assert.True(t, a.Equal(same))

	// Same payload, different creation event.
	twin := newRecommendation("quality", "quality_optimization", 0.8, a.Payload, now, time.Minute)
	assert.False(t, a.Equal(twin))

	changed := a
	changed.Confidence = 0.81
	assert.False(t, a.Equal(changed))

	// Monotonic clock readings must not break equality.
	stripped := a
	stripped.CreatedAt = a.CreatedAt.Round(0)
	assert.True(t, a.Equal(stripped))
}

func TestRecommendation_Expired(t *testing.T) {
	now := time.Now()
	rec := newRecommendation("a", "k", 0.5, nil, now, time.Second)

	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(time.Second)))
	assert.True(t, rec.Expired(now.Add(time.Hour)))

	never := newRecommendation("a", "k", 0.5, nil, now, 0)
	assert.False(t, never.Expired(now.Add(24*365*time.Hour)))
}

func TestRecommendation_PayloadAccessors(t *testing.T) {
	rec := newRecommendation("a", "k", 0.5, map[string]any{
		PayloadSeverity:  "medium",
		PayloadAutoApply: true,
	}, time.Now(), 0)
	assert.Equal(t, SeverityMedium, rec.Severity())
	assert.True(t, rec.AutoApply())

	bare := newRecommendation("a", "k", 0.5, map[string]any{PayloadAutoApply: "yes"}, time.Now(), 0)
	assert.Equal(t, SeverityLow, bare.Severity())
	assert.False(t, bare.AutoApply(), "only a boolean true enables auto-apply")
}

func TestRecommendation_View(t *testing.T) {
	rec := newRecommendation("content_curation", "peak_hour_content", 0.9, map[string]any{"strategy": "high_engagement"}, time.Now(), time.Minute)
	v := rec.View()

	assert.Equal(t, rec.ID, v.ID)
	assert.Equal(t, "content_curation", v.Agent)
	assert.Equal(t, "peak_hour_content", v.Type)
	assert.Equal(t, "high_engagement", v.Data["strategy"])
	assert.Empty(t, v.Status)

	v.Data["strategy"] = "changed"
	assert.Equal(t, "high_engagement", rec.Payload["strategy"])
}

func TestSeverity_OrderingIsByIntensity(t *testing.T) {
	tests := []struct {
		label string
		want  Severity
	}{
		{"", SeverityLow},
		{"low", SeverityLow},
		{"Medium", SeverityMedium},
		{" high ", SeverityHigh},
		{"catastrophic", SeverityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeverity(tt.label))
		})
	}

	// Alphabetically "high" < "low" < "medium"; the ordinal order must differ.
	assert.Less(t, ParseSeverity("low"), ParseSeverity("medium"))
	assert.Less(t, ParseSeverity("medium"), ParseSeverity("high"))
	assert.Less(t, ParseSeverity("high"), ParseSeverity("unheard-of"))

	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityMedium, SeverityHigh, SeverityLow))
	assert.Equal(t, SeverityLow, MaxSeverity())
	assert.Equal(t, "medium", SeverityMedium.String())
}

func TestMessage_NewMessageCopiesPayload(t *testing.T) {
	payload := map[string]any{"n": 1}
	msg := NewMessage("a", Broadcast, "t", payload, PriorityMedium)
	payload["n"] = 2

	assert.Equal(t, 1, msg.Payload["n"])
	assert.True(t, msg.IsBroadcast())
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "medium", msg.Priority.String())
}

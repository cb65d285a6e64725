// ABOUTME: Confidence-scored, optionally time-boxed suggestions produced by agents.
// ABOUTME: Defines value equality, expiry, severity and auto-apply accessors.

package agent

import (
	"maps"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// Payload keys the coordinator interprets.
const (
	PayloadSeverity  = "severity"
	PayloadAutoApply = "auto_apply"
)

// Recommendation kinds with dedicated conflict or apply policies.
const (
	KindQualityOptimization  = "quality_optimization"
	KindPlaylistOptimization = "playlist_optimization"
	KindPeakHourContent      = "peak_hour_content"
)

// Recommendation is a suggested action produced by exactly one agent.
// It is never mutated after creation.
type Recommendation struct {
	ID         string
	ProducedBy string
	Kind       string
	Confidence float64
	Payload    map[string]any
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// recommendationFields strips the method set so cmp compares field by field.
type recommendationFields Recommendation

// Equal reports full-value equality across every field, including the id.
func (r Recommendation) Equal(other Recommendation) bool {
	return cmp.Equal(recommendationFields(r), recommendationFields(other))
}

// Expired reports whether the recommendation has passed its expiry at now.
// Recommendations without an expiry never expire from age alone.
func (r Recommendation) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Severity returns the payload severity, defaulting to low when absent.
func (r Recommendation) Severity() Severity {
	label, _ := r.Payload[PayloadSeverity].(string)
	return ParseSeverity(label)
}

// AutoApply reports whether the payload explicitly requests automatic application.
func (r Recommendation) AutoApply() bool {
	v, ok := r.Payload[PayloadAutoApply].(bool)
	return ok && v
}

// View is the serializable form of a recommendation.
type View struct {
	ID         string         `json:"id"`
	Agent      string         `json:"agent"`
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
	ExpiresAt  *time.Time     `json:"expires_at"`
	Status     string         `json:"status,omitempty"`
}

// View returns the serializable form.
func (r Recommendation) View() View {
	return View{
		ID:         r.ID,
		Agent:      r.ProducedBy,
		Type:       r.Kind,
		Confidence: r.Confidence,
		Data:       maps.Clone(r.Payload),
		Timestamp:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

func newRecommendation(producer, kind string, confidence float64, payload map[string]any, now time.Time, ttl time.Duration) Recommendation {
	rec := Recommendation{
		ID:         uuid.New().String(),
		ProducedBy: producer,
		Kind:       kind,
		Confidence: min(max(confidence, 0), 1),
		Payload:    maps.Clone(payload),
		CreatedAt:  now,
	}
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		rec.ExpiresAt = &expires
	}
	return rec
}

// ABOUTME: Conflict tie-break policies used when several active recommendations share a kind.

package ledger

import "github.com/2389/stream-agents/internal/agent"

// Better reports whether a should win over b.
type Better func(a, b agent.Recommendation) bool

// HigherConfidence prefers higher confidence, then the earlier creation time.
func HigherConfidence(a, b agent.Recommendation) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// LowerSeverity prefers the least severe payload, falling back to HigherConfidence.
func LowerSeverity(a, b agent.Recommendation) bool {
	sa, sb := a.Severity(), b.Severity()
	if sa != sb {
		return sa < sb
	}
	return HigherConfidence(a, b)
}

// DefaultPolicies returns the built-in per-kind policies. Kinds without an
// entry use HigherConfidence.
func DefaultPolicies() map[string]Better {
	return map[string]Better{
		agent.KindQualityOptimization:  LowerSeverity,
		agent.KindPlaylistOptimization: HigherConfidence,
	}
}

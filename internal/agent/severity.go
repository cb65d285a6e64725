// ABOUTME: Ordinal severity levels read from recommendation payloads.
// ABOUTME: Ordering is by intensity (low < medium < high), never by label spelling.

package agent

import "strings"

// Severity is an ordinal intensity level. Larger values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	// SeverityUnknown ranks above high so a recognised label always wins a tie-break.
	SeverityUnknown
)

// ParseSeverity maps a payload label to its ordinal. An empty label is low.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

// String returns the payload label for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MaxSeverity returns the most severe of the given levels, or low when empty.
func MaxSeverity(levels ...Severity) Severity {
	out := SeverityLow
	for _, s := range levels {
		if s > out {
			out = s
		}
	}
	return out
}

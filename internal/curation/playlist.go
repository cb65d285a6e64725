// ABOUTME: Playlist reordering by combined score bands and keyword categorisation of videos.

package curation

import (
	"slices"
	"strings"
)

// Video is one playlist entry as the host describes it.
type Video struct {
	ID              string  `yaml:"id" json:"id"`
	Title           string  `yaml:"title" json:"title"`
	Channel         string  `yaml:"channel" json:"channel"`
	DurationSeconds float64 `yaml:"duration" json:"duration"`
}

// Score is a host-computed assessment of a video, each in [0,1].
type Score struct {
	Quality    float64
	Engagement float64
}

// Combined weights the two scores; engagementWeight is clamped to [0,1].
func (s Score) Combined(engagementWeight float64) float64 {
	w := min(max(engagementWeight, 0), 1)
	return s.Quality*(1-w) + s.Engagement*w
}

// Scored pairs a video with its combined score.
type Scored struct {
	Video Video
	Score float64
}

const (
	highBand = 0.7
	lowBand  = 0.4
)

// Reorder arranges videos for engagement flow: the strongest video first,
// medium videos interleaved with the remaining strong ones (one strong after
// every second medium), leftover strong videos, then weak ones last.
func Reorder(scored []Scored) []Video {
	sorted := slices.Clone(scored)
	slices.SortStableFunc(sorted, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	var high, medium, low []Video
	for _, s := range sorted {
		switch {
		case s.Score > highBand:
			high = append(high, s.Video)
		case s.Score >= lowBand:
			medium = append(medium, s.Video)
		default:
			low = append(low, s.Video)
		}
	}

	out := make([]Video, 0, len(scored))
	if len(high) > 0 {
		out = append(out, high[0])
		high = high[1:]
	}
	for i, v := range medium {
		out = append(out, v)
		if len(high) > 0 && i%2 == 1 {
			out = append(out, high[0])
			high = high[1:]
		}
	}
	out = append(out, high...)
	return append(out, low...)
}

// Category names used for performance history.
const (
	CategoryTech          = "tech_content"
	CategoryEntertainment = "entertainment"
	CategoryEducational   = "educational"
	CategoryGeneral       = "general"
)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryTech, []string{"tech", "programming", "coding", "tutorial"}},
	{CategoryEntertainment, []string{"funny", "comedy", "entertainment", "music"}},
	{CategoryEducational, []string{"learn", "education", "guide", "course"}},
}

// Categorize assigns a category from title keywords.
func Categorize(v Video) string {
	title := strings.ToLower(v.Title)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(title, kw) {
				return c.category
			}
		}
	}
	return CategoryGeneral
}

func videoIDs(videos []Video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	return ids
}

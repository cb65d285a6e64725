// ABOUTME: Human-readable coordination report rendered as markdown or, via goldmark, HTML.

package api

import (
	"bytes"
	"fmt"
	"html/template"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/coordinator"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>stream-agents report</title></head>
<body>
{{.}}
</body>
</html>
`))

// handleReport serves GET /report. ?format=md returns the markdown source.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	md := renderReport(s.coord.AgentStatus(), s.coord.Recommendations(true), time.Now())

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(md)
		return
	}

	var htmlBuf bytes.Buffer
	if err := markdown.Convert(md, &htmlBuf); err != nil {
		s.logger.Error("failed to convert report markdown", "error", err)
		htmlBuf.Reset()
		htmlBuf.WriteString("<p>Failed to render report.</p>")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportPage.Execute(w, template.HTML(htmlBuf.String())); err != nil {
		s.logger.Error("failed to render report", "error", err)
	}
}

func renderReport(st coordinator.Status, views []agent.View, now time.Time) []byte {
	var b strings.Builder

	b.WriteString("# Coordination report\n\n")
	fmt.Fprintf(&b, "Generated %s. Coordinator is **%s**", now.UTC().Format(time.RFC3339), st.State)
	if !st.Enabled {
		b.WriteString(" (disabled)")
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "- Active recommendations: %d\n", st.Active)
	fmt.Fprintf(&b, "- Applied: %d recent, %d total\n", st.Applied, st.AppliedTotal)
	fmt.Fprintf(&b, "- Bus: %d published, %d delivered, %d dropped\n\n", st.Bus.Published, st.Bus.Delivered, st.Bus.Dropped)

	b.WriteString("## Agents\n\n")
	if len(st.Agents) == 0 {
		b.WriteString("No agents configured.\n\n")
	} else {
		b.WriteString("| Agent | Kind | Enabled | Running | Recommendations | Interval |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, id := range slices.Sorted(maps.Keys(st.Agents)) {
			a := st.Agents[id]
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %ds |\n",
				cell(a.ID), cell(a.Kind), yesNo(a.Enabled), yesNo(a.Running), a.TotalRecommendations, a.UpdateIntervalSeconds)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	if len(views) == 0 {
		b.WriteString("None.\n")
		return []byte(b.String())
	}
	b.WriteString("| Status | Type | Agent | Confidence | Details |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, v := range views {
		status := v.Status
		if status == "" {
			status = "active"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %s |\n",
			status, cell(v.Type), cell(v.Agent), v.Confidence, cell(summarize(v.Data)))
	}
	return []byte(b.String())
}

// summarize renders scalar payload fields as sorted key=value pairs and
// collections by their length.
func summarize(data map[string]any) string {
	parts := make([]string, 0, len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		switch v := data[k].(type) {
		case []any:
			parts = append(parts, fmt.Sprintf("%s=[%d]", k, len(v)))
		case []string:
			parts = append(parts, fmt.Sprintf("%s=[%d]", k, len(v)))
		case []map[string]any:
			parts = append(parts, fmt.Sprintf("%s=[%d]", k, len(v)))
		case map[string]any:
			parts = append(parts, fmt.Sprintf("%s={%d}", k, len(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

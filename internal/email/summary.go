// Package email renders run summaries for the notification senders.
package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ideaforge/internal/domain"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// RenderRunSummary builds the notification sent after a run.
func RenderRunSummary(s *domain.RunSummary) Message {
	persisted := s.Count(domain.StatePersisted)
	failed := s.Count(domain.StateFailed)
	skipped := s.Count(domain.StateSkipped)

	subject := fmt.Sprintf("ideaforge run %s: %d persisted, %d failed, %d skipped",
		shortID(s), persisted, failed, skipped)

	var text strings.Builder
	fmt.Fprintf(&text, "Run %s\n", s.RunID)
	fmt.Fprintf(&text, "Started:  %s\nFinished: %s (%s)\n\n",
		s.StartedAt.Format("2006-01-02 15:04:05 MST"),
		s.FinishedAt.Format("2006-01-02 15:04:05 MST"),
		s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintf(&text, "Documents: %d (persisted %d, failed %d, skipped %d)\n", len(s.Documents), persisted, failed, skipped)
	for _, d := range s.Documents {
		line := fmt.Sprintf("  - %s: %s", d.Document, d.State)
		if d.Error != "" {
			line += " (" + d.Error + ")"
		}
		text.WriteString(line + "\n")
	}
	fmt.Fprintf(&text, "\nClusters: %d", len(s.Clusters))
	if s.ClusterFailed {
		text.WriteString(" (clustering failed, whole corpus synthesized together)")
	}
	text.WriteString("\n")
	for _, c := range s.Clusters {
		fmt.Fprintf(&text, "  - %s: %d document(s)\n", c.Name, len(c.Members))
	}
	fmt.Fprintf(&text, "\nReports written: %d\n", len(s.Reports))
	for _, r := range s.Reports {
		fmt.Fprintf(&text, "  - %s\n", r)
	}

	return Message{
		Subject: subject,
		Text:    text.String(),
		HTML:    "<!DOCTYPE html>\n<html><body style=\"font-family: monospace;\"><pre>" + html.EscapeString(text.String()) + "</pre></body></html>",
	}
}

func shortID(s *domain.RunSummary) string {
	id := s.RunID.String()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package triage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/linnemanlabs/argus/internal/ticket"
)

// Comment renders the triage output as plain ticket text: one line per
// hypothesis, then an optional narrative and runbook link.
func Comment(hyps []Hypothesis, narrative, runbookLink string) string {
	var b strings.Builder
	for i, h := range hyps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s (confidence: %s)", h.Text, formatConfidence(h.Confidence))
	}
	if narrative != "" {
		fmt.Fprintf(&b, "\n\nAnalysis: %s", narrative)
	}
	if runbookLink != "" {
		fmt.Fprintf(&b, "\nRunbook: %s", runbookLink)
	}
	return b.String()
}

// Enrich appends the triage comment to the incident's ticket.
func Enrich(ctx context.Context, w ticket.Writer, ticketID string, hyps []Hypothesis, narrative, runbookLink string) error {
	if w == nil || !w.IsConfigured() {
		return fmt.Errorf("no ticket system configured")
	}
	if ticketID == "" {
		return fmt.Errorf("no ticket to enrich")
	}
	return w.AddComment(ctx, ticketID, Comment(hyps, narrative, runbookLink))
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'g', -1, 64)
}

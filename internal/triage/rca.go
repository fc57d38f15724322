// Package triage turns a fresh incident into actionable context: root
// cause hypotheses, runbook suggestions, and a ticket enrichment comment.
// Hypotheses are rule-based templates keyed by metric family; an optional
// narrator adds a prose narrative on top without ever being required.
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

// Hypothesis is one candidate root cause with a confidence score and the
// evidence that produced it.
type Hypothesis struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

const maxHypotheses = 3

// rcaTemplates are evaluated in order; the first metric match, exact or
// prefix, wins. At most two hypotheses come from a template.
var rcaTemplates = []struct {
	metric string
	hyps   []Hypothesis
}{
	{"cpu_percent", []Hypothesis{
		{Text: "High CPU likely due to load spike or runaway process", Confidence: 0.75, Evidence: "metric: cpu_percent"},
		{Text: "Check for recent deployment or config change on same host", Confidence: 0.5, Evidence: "correlation window"},
	}},
	{"memory_percent", []Hypothesis{
		{Text: "High memory may indicate leak or cache growth", Confidence: 0.7, Evidence: "metric: memory_percent"},
		{Text: "Review recent code/config changes affecting heap or cache", Confidence: 0.5, Evidence: "correlation"},
	}},
	{"error_rate", []Hypothesis{
		{Text: "Error spike may indicate deployment, dependency failure, or bad config", Confidence: 0.8, Evidence: "metric: error_rate"},
		{Text: "Check upstream services and recent releases", Confidence: 0.6, Evidence: "dependency check"},
	}},
	{"up", []Hypothesis{
		{Text: "Service down: check process, host, or network", Confidence: 0.85, Evidence: "metric: up=0"},
		{Text: "Possible maintenance window or deployment in progress", Confidence: 0.4, Evidence: "time window"},
	}},
	{"latency_p99_ms", []Hypothesis{
		{Text: "Latency spike may be due to saturation, slow dependency, or GC", Confidence: 0.7, Evidence: "metric: latency_p99_ms"},
		{Text: "Check database or downstream service health", Confidence: 0.55, Evidence: "dependency"},
	}},
}

// Hypotheses returns one to three hypotheses for an incident. An unknown
// metric gets a generic fallback rather than an empty result.
func Hypotheses(service, metric string) []Hypothesis {
	for _, t := range rcaTemplates {
		if t.metric == metric || (metric != "" && strings.HasPrefix(metric, t.metric)) {
			out := make([]Hypothesis, len(t.hyps))
			copy(out, t.hyps)
			if len(out) > maxHypotheses {
				out = out[:maxHypotheses]
			}
			return out
		}
	}
	return []Hypothesis{{
		Text:       fmt.Sprintf("Possible root cause for %s: review logs and recent changes", service),
		Confidence: 0.5,
		Evidence:   fmt.Sprintf("service=%s, metric=%s", service, metric),
	}}
}

// Narrator produces an optional prose narrative over the rule hypotheses.
type Narrator interface {
	IsConfigured() bool
	Narrate(ctx context.Context, system, prompt string) (string, error)
}

const narrativeSystem = "You are an SRE assistant. Given an incident and candidate root causes, write a short plain-text analysis (3-5 sentences). No markdown."

// Narrative asks the narrator for a short analysis of the incident. It
// returns "" when the narrator is nil, unconfigured, or fails; the caller
// proceeds with the rule hypotheses alone.
func Narrative(ctx context.Context, n Narrator, logger log.Logger, service, summary string, hyps []Hypothesis) string {
	if n == nil || !n.IsConfigured() {
		return ""
	}
	if logger == nil {
		logger = log.Nop()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\nIncident: %s\nCandidate causes:\n", service, summary)
	for _, h := range hyps {
		fmt.Fprintf(&b, "- %s (confidence %s)\n", h.Text, formatConfidence(h.Confidence))
	}

	text, err := n.Narrate(ctx, narrativeSystem, b.String())
	if err != nil {
		logger.Warn(ctx, "narrative generation failed", "service", service, "error", err.Error())
		return ""
	}
	return text
}

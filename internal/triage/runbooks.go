package triage

import (
	"path/filepath"
	"strings"
)

const maxSuggestions = 2

// Suggestion points at one runbook document and why it matched.
type Suggestion struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunbookDir suggests runbooks by keyword match over markdown files in one
// or more knowledge directories. The directories are re-globbed on every
// call so new runbooks are picked up without a restart.
type RunbookDir struct {
	roots []string
}

// NewRunbookDir creates a RunbookDir over the given roots. Missing
// directories are simply empty.
func NewRunbookDir(roots ...string) *RunbookDir {
	return &RunbookDir{roots: roots}
}

// Suggest returns up to two runbooks whose file name mentions the service
// or shares a keyword with the incident summary. No auto-action: callers
// only surface these as links.
func (d *RunbookDir) Suggest(summary, service string) []Suggestion {
	summaryLower := strings.ToLower(summary)
	serviceLower := strings.ToLower(service)

	var out []Suggestion
	for _, root := range d.roots {
		matches, err := filepath.Glob(filepath.Join(root, "*.md"))
		if err != nil {
			continue
		}
		// Glob output is sorted, which keeps suggestions stable.
		for _, f := range matches {
			stem := strings.TrimSuffix(filepath.Base(f), ".md")
			if matchesRunbook(stem, summaryLower, serviceLower) {
				out = append(out, Suggestion{
					Name:   stem,
					Path:   f,
					Reason: "Match: " + stem,
				})
				if len(out) >= maxSuggestions {
					return out
				}
			}
		}
	}
	return out
}

// matchesRunbook checks the service name against the file stem, then any
// stem keyword longer than two characters against the summary.
func matchesRunbook(stem, summaryLower, serviceLower string) bool {
	name := strings.ToLower(stem)
	if serviceLower != "" && strings.Contains(name, serviceLower) {
		return true
	}
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' })
	for _, w := range words {
		if len(w) > 2 && strings.Contains(summaryLower, w) {
			return true
		}
	}
	return false
}
